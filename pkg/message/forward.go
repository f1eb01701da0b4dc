package message

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// DefaultBaudRate denotes the default baud rate of a serial console
const DefaultBaudRate = 115200

// Forward writes every record arriving on the queue to w (one record per line)
// until the context is done or a write fails. Records still queued once the
// context is done are flushed before returning
func Forward(ctx context.Context, q *Queue, w io.Writer) error {
	for {
		select {
		case <-ctx.Done():
			for _, r := range q.Drain() {
				if err := writeRecord(w, r); err != nil {
					return err
				}
			}
			return ctx.Err()
		case r := <-q.C():
			if err := writeRecord(w, r); err != nil {
				return err
			}
		}
	}
}

func writeRecord(w io.Writer, r Record) error {
	if _, err := fmt.Fprintln(w, r); err != nil {
		return fmt.Errorf("failed to forward record: %w", err)
	}
	return nil
}

// OpenSerial opens a serial port to be used as forwarding target
func OpenSerial(port string, baudRate int) (io.WriteCloser, error) {
	if baudRate == 0 {
		baudRate = DefaultBaudRate
	}

	conn, err := serial.Open(port, &serial.Mode{
		BaudRate: baudRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", port, err)
	}

	return conn, nil
}
