//go:build !prod

package database

// GetDefaultDBPath puts the development database in the working directory.
func GetDefaultDBPath() string {
	return "designchat.db"
}

func IsDevelopment() bool {
	return true
}
