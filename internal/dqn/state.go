package dqn

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// StateRecordSize is the size of the agent-state file: f32 epsilon then
// u64 step count, little-endian.
const StateRecordSize = 12

// EncodeState packs epsilon and the step counter into the 12-byte record.
func EncodeState(eps float32, steps uint64) []byte {
	b := make([]byte, StateRecordSize)
	binary.LittleEndian.PutUint32(b[0:4], math.Float32bits(eps))
	binary.LittleEndian.PutUint64(b[4:12], steps)
	return b
}

// DecodeState unpacks a record produced by EncodeState.
func DecodeState(b []byte) (eps float32, steps uint64, err error) {
	if len(b) != StateRecordSize {
		return 0, 0, fmt.Errorf("dqn: agent state is %d bytes, want %d", len(b), StateRecordSize)
	}
	eps = math.Float32frombits(binary.LittleEndian.Uint32(b[0:4]))
	steps = binary.LittleEndian.Uint64(b[4:12])
	return eps, steps, nil
}

// SaveState writes the agent-state record to path, replacing it atomically.
func SaveState(path string, eps float32, steps uint64) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, EncodeState(eps, steps), 0644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write agent state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace agent state: %w", err)
	}
	return nil
}

// LoadState reads the agent-state record from path.
func LoadState(path string) (float32, uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read agent state: %w", err)
	}
	return DecodeState(b)
}
