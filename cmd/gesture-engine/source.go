package main

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/banshee-data/gestures/internal/gesture"
)

// parseRecord converts one CSV record into a sample. Accepted layouts:
//
//	timestamp_ms,ax,ay,az
//	timestamp_ms,ax,ay,az,gx,gy,gz
func parseRecord(fields []string) (gesture.Sample, error) {
	var s gesture.Sample
	if len(fields) != 4 && len(fields) != 7 {
		return s, fmt.Errorf("expected 4 or 7 fields, got %d", len(fields))
	}
	vals := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return s, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	s.Timestamp = int64(vals[0])
	s.AX, s.AY, s.AZ = vals[1], vals[2], vals[3]
	if len(vals) == 7 {
		s.GX, s.GY, s.GZ = vals[4], vals[5], vals[6]
	}
	return s, nil
}

// replayCSV feeds a recorded capture through the engine. rate 1.0 paces
// samples at their original timestamp spacing; 0 feeds as fast as possible.
func replayCSV(ctx context.Context, engine *gesture.Engine, path string, rate float64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var prevTS int64
	count := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		record, err := r.Read()
		if err == io.EOF {
			log.Printf("replay finished: %d samples from %s", count, path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("read csv: %w", err)
		}
		s, err := parseRecord(record)
		if err != nil {
			// Tolerate a header row, fail on anything later.
			if count == 0 {
				continue
			}
			return fmt.Errorf("record %d: %w", count+1, err)
		}

		if rate > 0 && prevTS != 0 && s.Timestamp > prevTS {
			delay := time.Duration(float64(s.Timestamp-prevTS)/rate) * time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
		prevTS = s.Timestamp

		if err := engine.FeedSamples([]gesture.Sample{s}); err != nil {
			return err
		}
		count++
	}
}

// readSerial streams CSV-formatted sample lines from a serial device. Lines
// that fail to parse are skipped; sensor firmware emits debug text on the
// same port.
func readSerial(ctx context.Context, engine *gesture.Engine, portName string, baud int) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: 1,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", portName, err)
	}
	defer port.Close()
	log.Printf("reading samples from %s at %d baud", portName, baud)

	// Close the port on cancellation to unblock the scanner.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	scan := bufio.NewScanner(port)
	dropped := 0
	for scan.Scan() {
		line := strings.TrimSpace(scan.Text())
		if line == "" {
			continue
		}
		s, err := parseRecord(strings.Split(line, ","))
		if err != nil {
			dropped++
			if dropped%100 == 0 {
				log.Printf("skipped %d unparseable serial lines (latest: %v)", dropped, err)
			}
			continue
		}
		if err := engine.FeedSamples([]gesture.Sample{s}); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return scan.Err()
}
