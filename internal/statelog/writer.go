package statelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
)

const (
	logCreateErrorTemplateConstant = "unable to create state log %s: %w"
	logWriteErrorTemplateConstant  = "unable to write state log: %w"
	writerClosedMessageConstant    = "state log writer already closed"
)

// ErrWriterClosed indicates an append after Close.
var ErrWriterClosed = errors.New(writerClosedMessageConstant)

type csvEncodable interface {
	DownloadRecord | PublishRecord
	csvRecord() ([]string, error)
}

// Writer streams records to a CSV state log, flushing after every row so that rows written
// before a fatal error remain on disk.
type Writer[Record csvEncodable] struct {
	csvWriter *csv.Writer
	closer    io.Closer
	closed    bool
}

// NewDownloadWriter writes a download log header to output and returns a Writer for its rows.
func NewDownloadWriter(output io.Writer) (*Writer[DownloadRecord], error) {
	return newWriter[DownloadRecord](output, nil, DownloadColumns())
}

// NewPublishWriter writes a publish log header to output and returns a Writer for its rows.
func NewPublishWriter(output io.Writer) (*Writer[PublishRecord], error) {
	return newWriter[PublishRecord](output, nil, PublishColumns())
}

// CreateDownloadLog truncates or creates the download log at path.
func CreateDownloadLog(path string) (*Writer[DownloadRecord], error) {
	return createLog[DownloadRecord](path, DownloadColumns())
}

// CreatePublishLog truncates or creates the publish log at path.
func CreatePublishLog(path string) (*Writer[PublishRecord], error) {
	return createLog[PublishRecord](path, PublishColumns())
}

func createLog[Record csvEncodable](path string, columns []string) (*Writer[Record], error) {
	file, createError := os.Create(path)
	if createError != nil {
		return nil, fmt.Errorf(logCreateErrorTemplateConstant, path, createError)
	}
	writer, headerError := newWriter[Record](file, file, columns)
	if headerError != nil {
		_ = file.Close()
		return nil, headerError
	}
	return writer, nil
}

func newWriter[Record csvEncodable](output io.Writer, closer io.Closer, columns []string) (*Writer[Record], error) {
	writer := &Writer[Record]{csvWriter: csv.NewWriter(output), closer: closer}
	if headerError := writer.writeRow(columns); headerError != nil {
		return nil, headerError
	}
	return writer, nil
}

// Append writes one record and flushes it.
func (writer *Writer[Record]) Append(record Record) error {
	if writer.closed {
		return ErrWriterClosed
	}
	fields, encodingError := record.csvRecord()
	if encodingError != nil {
		return fmt.Errorf(logWriteErrorTemplateConstant, encodingError)
	}
	return writer.writeRow(fields)
}

// Close flushes pending output and closes the underlying file, if any. Closing twice is a no-op.
func (writer *Writer[Record]) Close() error {
	if writer.closed {
		return nil
	}
	writer.closed = true
	writer.csvWriter.Flush()
	flushError := writer.csvWriter.Error()
	if writer.closer != nil {
		if closeError := writer.closer.Close(); flushError == nil {
			flushError = closeError
		}
	}
	if flushError != nil {
		return fmt.Errorf(logWriteErrorTemplateConstant, flushError)
	}
	return nil
}

func (writer *Writer[Record]) writeRow(fields []string) error {
	if writeError := writer.csvWriter.Write(fields); writeError != nil {
		return fmt.Errorf(logWriteErrorTemplateConstant, writeError)
	}
	writer.csvWriter.Flush()
	if flushError := writer.csvWriter.Error(); flushError != nil {
		return fmt.Errorf(logWriteErrorTemplateConstant, flushError)
	}
	return nil
}
