//go:build windows

package linker

import (
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/teyk0o/simsforge/internal/domain"
)

// NTFS junctions are reparse points that, unlike directory symlinks, do not
// require SeCreateSymbolicLinkPrivilege (or Developer Mode) to create. They
// are the fallback Activator reaches for when ProbeSymlinkSupport reports
// the Mods volume cannot grant that privilege.

const (
	reparseTagMountPoint   = 0xA0000003
	fsctlSetReparsePoint   = 0x000900A4
	fsctlDeleteReparsePoint = 0x000900AC
	maxReparseDataLength   = 16 * 1024
)

// JunctionLinker deploys mods using NTFS directory junctions.
type JunctionLinker struct{}

// NewJunction creates a new junction linker.
func NewJunction() *JunctionLinker {
	return &JunctionLinker{}
}

// Deploy creates an NTFS junction at dst pointing at the absolute path src.
// src must be a directory: junctions have no file-target equivalent.
func (l *JunctionLinker) Deploy(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("statting source: %w", err)
	}
	if !srcInfo.IsDir() {
		return domain.NewError(domain.ErrKindSymlinkFailed, "linker.Deploy", fmt.Errorf("source is not a directory: %s", src))
	}

	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolving absolute source: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination dir: %w", err)
	}
	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing existing entry: %w", err)
	}
	if err := os.Mkdir(dst, 0o755); err != nil {
		return fmt.Errorf("creating junction directory: %w", err)
	}

	if err := setJunctionTarget(dst, absSrc); err != nil {
		os.Remove(dst)
		return fmt.Errorf("setting reparse point: %w", err)
	}

	return nil
}

// Undeploy removes the junction at dst without touching its target.
func (l *JunctionLinker) Undeploy(dst string) error {
	deployed, err := l.IsDeployed(dst)
	if err != nil {
		return err
	}
	if !deployed {
		return nil
	}
	return os.Remove(dst)
}

// IsDeployed reports whether dst exists and carries the mount-point reparse
// tag.
func (l *JunctionLinker) IsDeployed(dst string) (bool, error) {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode()&os.ModeIrregular != 0 || hasReparseTag(dst), nil
}

// Method returns domain.LinkJunction.
func (l *JunctionLinker) Method() domain.LinkMethod {
	return domain.LinkJunction
}

func setJunctionTarget(dst, target string) error {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(dst),
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return fmt.Errorf("opening junction handle: %w", err)
	}
	defer windows.CloseHandle(h)

	buf := buildMountPointReparseBuffer(target)

	var bytesReturned uint32
	return windows.DeviceIoControl(
		h,
		fsctlSetReparsePoint,
		&buf[0],
		uint32(len(buf)),
		nil,
		0,
		&bytesReturned,
		nil,
	)
}

// buildMountPointReparseBuffer lays out a REPARSE_DATA_BUFFER carrying an
// NTFS mount-point target, per the format Windows expects for
// FSCTL_SET_REPARSE_POINT.
func buildMountPointReparseBuffer(target string) []byte {
	substitute := `\??\` + target
	substituteUTF16 := windows.StringToUTF16(substitute)
	printUTF16 := windows.StringToUTF16(target)

	substituteBytes := utf16ToBytes(substituteUTF16[:len(substituteUTF16)-1])
	printBytes := utf16ToBytes(printUTF16[:len(printUTF16)-1])

	pathBufferLen := len(substituteBytes) + 2 + len(printBytes) + 2
	dataLen := 8 + pathBufferLen
	total := 8 + dataLen

	buf := make([]byte, total)
	putUint32(buf[0:], reparseTagMountPoint)
	putUint16(buf[4:], uint16(dataLen))
	// buf[6:8] reserved, left zero

	off := 8
	putUint16(buf[off:], 0)                                  // SubstituteNameOffset
	putUint16(buf[off+2:], uint16(len(substituteBytes)))     // SubstituteNameLength
	putUint16(buf[off+4:], uint16(len(substituteBytes)+2))   // PrintNameOffset
	putUint16(buf[off+6:], uint16(len(printBytes)))          // PrintNameLength

	pathStart := off + 8
	copy(buf[pathStart:], substituteBytes)
	copy(buf[pathStart+len(substituteBytes)+2:], printBytes)

	return buf
}

func hasReparseTag(path string) bool {
	h, err := windows.CreateFile(
		windows.StringToUTF16Ptr(path),
		windows.GENERIC_READ,
		windows.FILE_SHARE_READ,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_FLAG_OPEN_REPARSE_POINT|windows.FILE_FLAG_BACKUP_SEMANTICS,
		0,
	)
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var fi windows.ByHandleFileInformation
	if err := windows.GetFileInformationByHandle(h, &fi); err != nil {
		return false
	}
	return fi.FileAttributes&windows.FILE_ATTRIBUTE_REPARSE_POINT != 0
}

func utf16ToBytes(u []uint16) []byte {
	b := make([]byte, len(u)*2)
	for i, v := range u {
		putUint16(b[i*2:], v)
	}
	return b
}

func putUint16(b []byte, v uint16) {
	*(*uint16)(unsafe.Pointer(&b[0])) = v
}

func putUint32(b []byte, v uint32) {
	*(*uint32)(unsafe.Pointer(&b[0])) = v
}
