package nn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// Checkpoint format constants.
const (
	Magic   = "SNET"
	Version = 1

	headerSize = 32
)

// Checkpoint errors. Load wraps these, test with errors.Is.
var (
	ErrBadMagic      = errors.New("nn: bad checkpoint magic")
	ErrVersion       = errors.New("nn: unsupported checkpoint version")
	ErrShapeMismatch = errors.New("nn: checkpoint shape mismatch")
)

// FileHeader is the fixed header of a network checkpoint.
type FileHeader struct {
	Magic    [4]byte
	Version  uint32
	Din      uint32
	H1       uint32
	H2       uint32
	Dout     uint32
	AdamStep uint64
}

type layerHeader struct {
	In  uint32
	Out uint32
}

// File format (little-endian):
//   - Header: "SNET", version u32, din u32, h1 u32, h2 u32, dout u32, adam_step u64
//   - Three layer blocks, input first: in u32, out u32, then the f32 arrays
//     W, B, mW, vW, mB, vB

// WriteWeights serializes parameters and optimizer state to w.
func (n *Network) WriteWeights(w io.Writer) error {
	header := FileHeader{
		Version:  Version,
		Din:      uint32(n.Din),
		H1:       uint32(n.H1),
		H2:       uint32(n.H2),
		Dout:     uint32(n.Dout),
		AdamStep: n.adamStep,
	}
	copy(header.Magic[:], Magic)
	if err := binary.Write(w, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i, l := range n.Layers() {
		if err := l.writeBlock(w); err != nil {
			return fmt.Errorf("failed to write layer %d: %w", i+1, err)
		}
	}
	return nil
}

func (l *Linear) writeBlock(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, layerHeader{In: uint32(l.In), Out: uint32(l.Out)}); err != nil {
		return err
	}
	for _, arr := range l.blockArrays() {
		if err := binary.Write(w, binary.LittleEndian, arr); err != nil {
			return err
		}
	}
	return nil
}

// blockArrays lists the serialized arrays in file order.
func (l *Linear) blockArrays() [6][]float32 {
	return [6][]float32{l.W, l.B, l.mW, l.vW, l.mB, l.vB}
}

// ReadWeights loads parameters and optimizer state from r. The stream is
// decoded completely before anything is committed, so on error the network
// is left unchanged.
func (n *Network) ReadWeights(r io.Reader) error {
	var header FileHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(header.Magic[:]) != Magic {
		return fmt.Errorf("%w: got %q", ErrBadMagic, header.Magic[:])
	}
	if header.Version != Version {
		return fmt.Errorf("%w: expected %d, got %d", ErrVersion, Version, header.Version)
	}
	if int(header.Din) != n.Din || int(header.H1) != n.H1 || int(header.H2) != n.H2 || int(header.Dout) != n.Dout {
		return fmt.Errorf("%w: expected %s, got %d-%d-%d-%d",
			ErrShapeMismatch, n.shape(), header.Din, header.H1, header.H2, header.Dout)
	}

	live := n.Layers()
	var scratch [3]*Linear
	for i, l := range live {
		s := newBlankLinear(l.In, l.Out)
		if err := s.readBlock(r); err != nil {
			return fmt.Errorf("failed to read layer %d: %w", i+1, err)
		}
		scratch[i] = s
	}

	for i, l := range live {
		src := scratch[i].blockArrays()
		for k, dst := range l.blockArrays() {
			copy(dst, src[k])
		}
	}
	n.adamStep = header.AdamStep
	return nil
}

func (l *Linear) readBlock(r io.Reader) error {
	var lh layerHeader
	if err := binary.Read(r, binary.LittleEndian, &lh); err != nil {
		return err
	}
	if int(lh.In) != l.In || int(lh.Out) != l.Out {
		return fmt.Errorf("%w: layer expected %dx%d, got %dx%d", ErrShapeMismatch, l.In, l.Out, lh.In, lh.Out)
	}
	for _, arr := range l.blockArrays() {
		if err := binary.Read(r, binary.LittleEndian, arr); err != nil {
			return err
		}
	}
	return nil
}

// Save writes the checkpoint to filename, replacing it atomically.
func (n *Network) Save(filename string) error {
	tmp := filename + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create weights file: %w", err)
	}

	bw := bufio.NewWriter(f)
	if err := n.WriteWeights(bw); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to flush weights file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close weights file: %w", err)
	}
	if err := os.Rename(tmp, filename); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace weights file: %w", err)
	}
	return nil
}

// Load reads a checkpoint written by Save.
func (n *Network) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open weights file: %w", err)
	}
	defer f.Close()

	return n.ReadWeights(bufio.NewReader(f))
}
