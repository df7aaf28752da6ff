package idgen

import (
	"errors"
	"time"

	"github.com/sony/sonyflake"
)

// Generator hands out time-ordered int64 ids for chat messages.
type Generator struct {
	sf *sonyflake.Sonyflake
}

// New builds a generator. machineID 0 lets sonyflake derive one from the
// host's private IPv4 address.
func New(machineID uint16) (*Generator, error) {
	st := sonyflake.Settings{StartTime: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	if machineID != 0 {
		st.MachineID = func() (uint16, error) { return machineID, nil }
	}
	sf := sonyflake.NewSonyflake(st)
	if sf == nil {
		return nil, errors.New("sonyflake init failed")
	}
	return &Generator{sf: sf}, nil
}

func (g *Generator) Next() (int64, error) {
	id, err := g.sf.NextID()
	if err != nil {
		return 0, err
	}
	return int64(id), nil
}
