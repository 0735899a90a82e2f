// Package trace implements the append-only binary time-series log kept
// per job: a small hand-rolled little-endian tagged-union codec (the one
// piece of the wire protocol pinned to an exact byte grammar, so there
// is no ecosystem serialization library to defer to), size-bounded
// folding, and the read paths the HTTP facade and fold tool use.
package trace

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cuemby/metricproxy/pkg/counter"
	"github.com/cuemby/metricproxy/pkg/job"
)

// Tag identifies which of the three frame payloads follows.
type Tag uint8

const (
	TagDesc Tag = iota
	TagCounterMetadata
	TagCounters
)

// Frame is one on-disk record: exactly one of the three payload fields
// is set, selected by Tag.
type Frame struct {
	Tag      Tag
	Desc     *DescPayload
	Metadata *MetadataPayload
	Counters *CountersPayload
}

// DescPayload is always the first frame in a trace file.
type DescPayload struct {
	JobID     string
	Command   string
	NodeList  string
	Partition string
	Cluster   string
	RunDir    string
	StartTime int64
}

// MetadataPayload interns a counter name the first time it is observed
// in this trace, assigning it a dense, monotone ID.
type MetadataPayload struct {
	ID   uint64
	Name string
	Doc  string
	Kind counter.Kind
}

// CounterValue is one metric's value inside a Counters frame.
type CounterValue struct {
	ID    uint64
	Value counter.CounterType
}

// CountersPayload is one sampling tick's worth of values.
type CountersPayload struct {
	TS     int64
	Values []CounterValue
}

// WriteFrame appends one length-prefixed frame to w.
func WriteFrame(w io.Writer, f Frame) error {
	var body bytes.Buffer
	body.WriteByte(byte(f.Tag))

	switch f.Tag {
	case TagDesc:
		if f.Desc == nil {
			return fmt.Errorf("trace: nil Desc payload")
		}
		writeDesc(&body, f.Desc)
	case TagCounterMetadata:
		if f.Metadata == nil {
			return fmt.Errorf("trace: nil Metadata payload")
		}
		writeMetadata(&body, f.Metadata)
	case TagCounters:
		if f.Counters == nil {
			return fmt.Errorf("trace: nil Counters payload")
		}
		writeCounters(&body, f.Counters)
	default:
		return fmt.Errorf("trace: unknown frame tag %d", f.Tag)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("trace: write frame length: %w", err)
	}
	if _, err := w.Write(body.Bytes()); err != nil {
		return fmt.Errorf("trace: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame from r. It returns io.EOF
// (unwrapped) when r is exhausted exactly at a frame boundary.
func ReadFrame(r io.Reader) (Frame, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Frame{}, fmt.Errorf("trace: truncated frame length: %w", err)
		}
		return Frame{}, err
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Frame{}, fmt.Errorf("trace: truncated frame body: %w", err)
	}

	br := bytes.NewReader(body)
	tagByte, err := br.ReadByte()
	if err != nil {
		return Frame{}, fmt.Errorf("trace: read frame tag: %w", err)
	}
	tag := Tag(tagByte)

	var f Frame
	f.Tag = tag
	switch tag {
	case TagDesc:
		d, err := readDesc(br)
		if err != nil {
			return Frame{}, err
		}
		f.Desc = d
	case TagCounterMetadata:
		m, err := readMetadata(br)
		if err != nil {
			return Frame{}, err
		}
		f.Metadata = m
	case TagCounters:
		c, err := readCounters(br)
		if err != nil {
			return Frame{}, err
		}
		f.Counters = c
	default:
		return Frame{}, fmt.Errorf("trace: unknown frame tag %d", tag)
	}
	return f, nil
}

func writeString(buf *bytes.Buffer, s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("trace: read string length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("trace: read string body: %w", err)
	}
	return string(buf), nil
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeI64(buf *bytes.Buffer, v int64) {
	writeU64(buf, uint64(v))
}

func readI64(r *bytes.Reader) (int64, error) {
	v, err := readU64(r)
	return int64(v), err
}

func writeF64(buf *bytes.Buffer, v float64) {
	writeU64(buf, math.Float64bits(v))
}

func readF64(r *bytes.Reader) (float64, error) {
	v, err := readU64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

func writeDesc(buf *bytes.Buffer, d *DescPayload) {
	writeString(buf, d.JobID)
	writeString(buf, d.Command)
	writeString(buf, d.NodeList)
	writeString(buf, d.Partition)
	writeString(buf, d.Cluster)
	writeString(buf, d.RunDir)
	writeI64(buf, d.StartTime)
}

func readDesc(r *bytes.Reader) (*DescPayload, error) {
	d := &DescPayload{}
	var err error
	if d.JobID, err = readString(r); err != nil {
		return nil, err
	}
	if d.Command, err = readString(r); err != nil {
		return nil, err
	}
	if d.NodeList, err = readString(r); err != nil {
		return nil, err
	}
	if d.Partition, err = readString(r); err != nil {
		return nil, err
	}
	if d.Cluster, err = readString(r); err != nil {
		return nil, err
	}
	if d.RunDir, err = readString(r); err != nil {
		return nil, err
	}
	if d.StartTime, err = readI64(r); err != nil {
		return nil, err
	}
	return d, nil
}

// DescFromJob adapts a job.Desc into the frame's on-disk shape.
func DescFromJob(d job.Desc) *DescPayload {
	return &DescPayload{
		JobID:     d.JobID,
		Command:   d.Command,
		NodeList:  d.NodeList,
		Partition: d.Partition,
		Cluster:   d.Cluster,
		RunDir:    d.RunDir,
		StartTime: d.StartTime,
	}
}

func writeMetadata(buf *bytes.Buffer, m *MetadataPayload) {
	writeU64(buf, m.ID)
	writeString(buf, m.Name)
	writeString(buf, m.Doc)
	buf.WriteByte(byte(m.Kind))
}

func readMetadata(r *bytes.Reader) (*MetadataPayload, error) {
	m := &MetadataPayload{}
	var err error
	if m.ID, err = readU64(r); err != nil {
		return nil, err
	}
	if m.Name, err = readString(r); err != nil {
		return nil, err
	}
	if m.Doc, err = readString(r); err != nil {
		return nil, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	m.Kind = counter.Kind(kindByte)
	return m, nil
}

func writeCounterValue(buf *bytes.Buffer, cv CounterValue) {
	writeU64(buf, cv.ID)
	buf.WriteByte(byte(cv.Value.Kind))
	writeI64(buf, cv.Value.TS)
	writeF64(buf, cv.Value.Value)
	writeF64(buf, cv.Value.Min)
	writeF64(buf, cv.Value.Max)
	writeF64(buf, cv.Value.Total)
	writeU64(buf, cv.Value.Hits)
}

func readCounterValue(r *bytes.Reader) (CounterValue, error) {
	var cv CounterValue
	var err error
	if cv.ID, err = readU64(r); err != nil {
		return cv, err
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return cv, err
	}
	cv.Value.Kind = counter.Kind(kindByte)
	if cv.Value.TS, err = readI64(r); err != nil {
		return cv, err
	}
	if cv.Value.Value, err = readF64(r); err != nil {
		return cv, err
	}
	if cv.Value.Min, err = readF64(r); err != nil {
		return cv, err
	}
	if cv.Value.Max, err = readF64(r); err != nil {
		return cv, err
	}
	if cv.Value.Total, err = readF64(r); err != nil {
		return cv, err
	}
	if cv.Value.Hits, err = readU64(r); err != nil {
		return cv, err
	}
	return cv, nil
}

func writeCounters(buf *bytes.Buffer, c *CountersPayload) {
	writeI64(buf, c.TS)
	writeU64(buf, uint64(len(c.Values)))
	for _, v := range c.Values {
		writeCounterValue(buf, v)
	}
}

func readCounters(r *bytes.Reader) (*CountersPayload, error) {
	c := &CountersPayload{}
	var err error
	if c.TS, err = readI64(r); err != nil {
		return nil, err
	}
	n, err := readU64(r)
	if err != nil {
		return nil, err
	}
	c.Values = make([]CounterValue, 0, n)
	for i := uint64(0); i < n; i++ {
		v, err := readCounterValue(r)
		if err != nil {
			return nil, err
		}
		c.Values = append(c.Values, v)
	}
	return c, nil
}
