//go:build unix

package capture

import (
	"errors"

	"golang.org/x/sys/unix"
)

func isSharingViolation(err error) bool {
	return errors.Is(err, unix.EBUSY) || errors.Is(err, unix.ETXTBSY)
}
