package data

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// maskedCRC is the TFRecord checksum: a rotated CRC32-C plus a constant.
func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + 0xa282ead8
}

// maxRecordSize guards against allocating for a corrupt length prefix.
const maxRecordSize = 64 << 20

// RecordReader reads TFRecord framing:
//
//	uint64 length | uint32 masked_crc(length) | data | uint32 masked_crc(data)
//
// all little-endian.
type RecordReader struct {
	r      *bufio.Reader
	header [12]byte
	footer [4]byte
	offset int64
}

// NewRecordReader wraps r.
func NewRecordReader(r io.Reader) *RecordReader {
	return &RecordReader{r: bufio.NewReaderSize(r, 1<<16)}
}

// Next returns the next record payload. It returns io.EOF at a clean end of
// stream and an error wrapping ErrBadRecord on truncation or checksum failure.
func (rr *RecordReader) Next() ([]byte, error) {
	if _, err := io.ReadFull(rr.r, rr.header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: truncated header at offset %d: %v", ErrBadRecord, rr.offset, err)
	}
	length := binary.LittleEndian.Uint64(rr.header[:8])
	if got, want := binary.LittleEndian.Uint32(rr.header[8:]), maskedCRC(rr.header[:8]); got != want {
		return nil, fmt.Errorf("%w: length checksum mismatch at offset %d", ErrBadRecord, rr.offset)
	}
	if length > maxRecordSize {
		return nil, fmt.Errorf("%w: record length %d at offset %d exceeds limit", ErrBadRecord, length, rr.offset)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(rr.r, data); err != nil {
		return nil, fmt.Errorf("%w: truncated payload at offset %d: %v", ErrBadRecord, rr.offset, err)
	}
	if _, err := io.ReadFull(rr.r, rr.footer[:]); err != nil {
		return nil, fmt.Errorf("%w: truncated footer at offset %d: %v", ErrBadRecord, rr.offset, err)
	}
	if got, want := binary.LittleEndian.Uint32(rr.footer[:]), maskedCRC(data); got != want {
		return nil, fmt.Errorf("%w: payload checksum mismatch at offset %d", ErrBadRecord, rr.offset)
	}
	rr.offset += int64(len(rr.header)) + int64(length) + int64(len(rr.footer))
	return data, nil
}

// RecordWriter writes TFRecord framing.
type RecordWriter struct {
	w *bufio.Writer
}

// NewRecordWriter wraps w. Call Flush when done.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// Write appends one record.
func (rw *RecordWriter) Write(data []byte) error {
	var header [12]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(len(data)))
	binary.LittleEndian.PutUint32(header[8:], maskedCRC(header[:8]))
	var footer [4]byte
	binary.LittleEndian.PutUint32(footer[:], maskedCRC(data))

	if _, err := rw.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := rw.w.Write(data); err != nil {
		return err
	}
	_, err := rw.w.Write(footer[:])
	return err
}

// Flush writes buffered records to the underlying writer.
func (rw *RecordWriter) Flush() error {
	return rw.w.Flush()
}
