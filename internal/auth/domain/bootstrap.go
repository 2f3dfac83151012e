package domain

type BootstrapData struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}
