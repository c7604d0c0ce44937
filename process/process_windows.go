//go:build windows
// +build windows

package process

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

func System() Lister { return toolhelp{} }

// toolhelp list processes by a Toolhelp32 snapshot
type toolhelp struct{}

func (toolhelp) Processes() ([]Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer windows.CloseHandle(snap)

	var pe32 windows.ProcessEntry32
	pe32.Size = uint32(unsafe.Sizeof(pe32))
	if err = windows.Process32First(snap, &pe32); err != nil {
		return nil, errors.WithStack(err)
	}

	var procs []Process
	for {
		procs = append(procs, Process{
			Pid:  pe32.ProcessID,
			Name: windows.UTF16ToString(pe32.ExeFile[:]),
		})

		if err = windows.Process32Next(snap, &pe32); err != nil {
			if errors.Is(err, windows.ERROR_NO_MORE_FILES) {
				break
			}
			return nil, errors.WithStack(err)
		}
	}
	return procs, nil
}
