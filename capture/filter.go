package capture

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Filter build divert filter that match outbound packets of pids, like
//
//	outbound and (processId == 1021 or processId == 1022)
func Filter(pids []uint32) (string, error) {
	if len(pids) == 0 {
		return "", errors.New("filter require at least one process id")
	}

	var s = &strings.Builder{}
	s.WriteString("outbound and (")
	for i, pid := range pids {
		if i > 0 {
			s.WriteString(" or ")
		}
		s.WriteString("processId == ")
		s.WriteString(strconv.FormatUint(uint64(pid), 10))
	}
	s.WriteString(")")
	return s.String(), nil
}
