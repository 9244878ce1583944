//go:build !windows && !unix

package capture

func isSharingViolation(error) bool {
	return false
}
