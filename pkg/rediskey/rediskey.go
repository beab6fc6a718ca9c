package rediskey

import "fmt"

// License keys (global convention across services)
const (
	LicensePrefix      = "license"
	LicenseValidPrefix = "license:valid"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLicenseIDKey returns "license:{licenseID}"
func BuildLicenseIDKey(licenseID string) string {
	return NamespaceKey(LicensePrefix, licenseID)
}

// BuildLicenseValidKey returns "license:valid:{licenseID}"
func BuildLicenseValidKey(licenseID string) string {
	return NamespaceKey(LicenseValidPrefix, licenseID)
}
