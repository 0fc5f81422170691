package statelog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"
)

const (
	logNotFoundMessageConstant     = "state log not found"
	logNotFoundTemplateConstant    = "%w: %s"
	logOpenErrorTemplateConstant   = "unable to open state log %s: %w"
	logHeaderErrorTemplateConstant = "unable to read state log header: %w"
	missingColumnTemplateConstant  = "state log header missing column %s"
	logReadErrorTemplateConstant   = "unable to read state log: %w"
	headerLineNumberConstant       = 1
	byteOrderMarkConstant          = "\ufeff"
	readerClosedMessageConstant    = "state log reader already closed"
)

// ErrLogNotFound indicates the requested state log does not exist.
var ErrLogNotFound = errors.New(logNotFoundMessageConstant)

// ErrReaderClosed indicates iteration after Close.
var ErrReaderClosed = errors.New(readerClosedMessageConstant)

// Reader decodes the rows of a state log. Columns are matched by header name, so files written
// with a different column order are accepted.
type Reader[Record any] struct {
	csvReader *csv.Reader
	closer    io.Closer
	columns   map[string]int
	decode    func(*rowDecoder) (Record, error)
	line      int
	closed    bool
}

// NewDownloadReader reads a download log from source.
func NewDownloadReader(source io.Reader) (*Reader[DownloadRecord], error) {
	return newReader(source, nil, decodeDownloadRecord)
}

// NewPublishReader reads a publish log from source.
func NewPublishReader(source io.Reader) (*Reader[PublishRecord], error) {
	return newReader(source, nil, decodePublishRecord)
}

// OpenDownloadLog opens the download log at path. A missing file yields ErrLogNotFound.
func OpenDownloadLog(path string) (*Reader[DownloadRecord], error) {
	return openLog(path, decodeDownloadRecord)
}

// OpenPublishLog opens the publish log at path. A missing file yields ErrLogNotFound.
func OpenPublishLog(path string) (*Reader[PublishRecord], error) {
	return openLog(path, decodePublishRecord)
}

func openLog[Record any](path string, decode func(*rowDecoder) (Record, error)) (*Reader[Record], error) {
	file, openError := os.Open(path)
	if openError != nil {
		if errors.Is(openError, os.ErrNotExist) {
			return nil, fmt.Errorf(logNotFoundTemplateConstant, ErrLogNotFound, path)
		}
		return nil, fmt.Errorf(logOpenErrorTemplateConstant, path, openError)
	}
	reader, headerError := newReader(file, file, decode)
	if headerError != nil {
		_ = file.Close()
		return nil, headerError
	}
	return reader, nil
}

func newReader[Record any](source io.Reader, closer io.Closer, decode func(*rowDecoder) (Record, error)) (*Reader[Record], error) {
	csvReader := csv.NewReader(source)
	csvReader.FieldsPerRecord = -1

	header, headerError := csvReader.Read()
	if headerError != nil {
		return nil, fmt.Errorf(logHeaderErrorTemplateConstant, headerError)
	}

	columns := make(map[string]int, len(header))
	for index, column := range header {
		if index == 0 {
			column = strings.TrimPrefix(column, byteOrderMarkConstant)
		}
		columns[strings.TrimSpace(column)] = index
	}
	for _, required := range []string{columnSequenceConstant, columnTypeConstant, columnProjectNameConstant, columnNameConstant, columnPathConstant, columnResponseConstant} {
		if _, present := columns[required]; !present {
			return nil, fmt.Errorf(missingColumnTemplateConstant, required)
		}
	}

	return &Reader[Record]{
		csvReader: csvReader,
		closer:    closer,
		columns:   columns,
		decode:    decode,
		line:      headerLineNumberConstant,
	}, nil
}

// Records yields rows in file order. A RowError describes one malformed row and iteration may
// continue past it; any other error ends the sequence.
func (reader *Reader[Record]) Records() iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		var zeroRecord Record
		if reader.closed {
			yield(zeroRecord, ErrReaderClosed)
			return
		}
		for {
			fields, readError := reader.csvReader.Read()
			if errors.Is(readError, io.EOF) {
				return
			}
			if readError != nil {
				yield(zeroRecord, fmt.Errorf(logReadErrorTemplateConstant, readError))
				return
			}
			reader.line++

			record, decodeError := reader.decode(&rowDecoder{columns: reader.columns, fields: fields, line: reader.line})
			if !yield(record, decodeError) {
				return
			}
		}
	}
}

// Close releases the underlying file, if any.
func (reader *Reader[Record]) Close() error {
	if reader.closed {
		return nil
	}
	reader.closed = true
	if reader.closer == nil {
		return nil
	}
	return reader.closer.Close()
}

// ReadDownloadLog loads every row of the download log at path.
func ReadDownloadLog(path string) ([]DownloadRecord, error) {
	reader, openError := OpenDownloadLog(path)
	if openError != nil {
		return nil, openError
	}
	defer func() { _ = reader.Close() }()
	return collect(reader.Records())
}

// ReadPublishLog loads every row of the publish log at path.
func ReadPublishLog(path string) ([]PublishRecord, error) {
	reader, openError := OpenPublishLog(path)
	if openError != nil {
		return nil, openError
	}
	defer func() { _ = reader.Close() }()
	return collect(reader.Records())
}

func collect[Record any](sequence iter.Seq2[Record, error]) ([]Record, error) {
	var records []Record
	for record, recordError := range sequence {
		if recordError != nil {
			return records, recordError
		}
		records = append(records, record)
	}
	return records, nil
}
