package statelog

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	columnSequenceConstant    = "Sno"
	columnTypeConstant        = "Type"
	columnProjectNameConstant = "ProjectName"
	columnNameConstant        = "Name"
	columnPathConstant        = "Path"
	columnShowTabsConstant    = "Show_Tabs"
	columnViewsConstant       = "Views"
	columnHiddenViewsConstant = "Hidden_Views"
	columnResponseConstant    = "Response"
	columnDetailsConstant     = "Details"
	showTabsTrueConstant      = "True"
	showTabsFalseConstant     = "False"
	showTabsFalseLowerCase    = "false"
	emptyViewListConstant     = "[]"
)

// DownloadColumns returns the download log header.
func DownloadColumns() []string {
	return []string{
		columnSequenceConstant,
		columnTypeConstant,
		columnProjectNameConstant,
		columnNameConstant,
		columnPathConstant,
		columnShowTabsConstant,
		columnViewsConstant,
		columnResponseConstant,
		columnDetailsConstant,
	}
}

// PublishColumns returns the publish log header.
func PublishColumns() []string {
	return []string{
		columnSequenceConstant,
		columnTypeConstant,
		columnProjectNameConstant,
		columnNameConstant,
		columnShowTabsConstant,
		columnHiddenViewsConstant,
		columnPathConstant,
		columnResponseConstant,
		columnDetailsConstant,
	}
}

func (record DownloadRecord) csvRecord() ([]string, error) {
	showTabs, views := "", ""
	if record.Workbook != nil {
		encodedViews, encodingError := encodeViewList(record.Workbook.VisibleViews)
		if encodingError != nil {
			return nil, encodingError
		}
		showTabs, views = encodeShowTabs(record.Workbook.ShowTabs), encodedViews
	}
	return []string{
		strconv.Itoa(record.Sequence),
		record.Kind.Label(),
		record.ProjectName,
		record.ObjectName,
		record.StagedPath,
		showTabs,
		views,
		string(record.Outcome),
		record.Detail,
	}, nil
}

func (record PublishRecord) csvRecord() ([]string, error) {
	showTabs, hiddenViews := "", ""
	if record.Workbook != nil {
		encodedViews, encodingError := encodeViewList(record.Workbook.HiddenViews)
		if encodingError != nil {
			return nil, encodingError
		}
		showTabs, hiddenViews = encodeShowTabs(record.Workbook.ShowTabs), encodedViews
	}
	return []string{
		strconv.Itoa(record.Sequence),
		record.Kind.Label(),
		record.ProjectName,
		record.ObjectName,
		showTabs,
		hiddenViews,
		record.StagedPath,
		string(record.Outcome),
		record.Detail,
	}, nil
}

func encodeShowTabs(showTabs bool) string {
	if showTabs {
		return showTabsTrueConstant
	}
	return showTabsFalseConstant
}

// decodeShowTabs treats every value other than a case-insensitive "false" as true.
func decodeShowTabs(value string) bool {
	return strings.ToLower(strings.TrimSpace(value)) != showTabsFalseLowerCase
}

func encodeViewList(views []string) (string, error) {
	if len(views) == 0 {
		return emptyViewListConstant, nil
	}
	encoded, encodingError := json.Marshal(views)
	if encodingError != nil {
		return "", encodingError
	}
	return string(encoded), nil
}

func decodeViewList(value string) ([]string, error) {
	trimmedValue := strings.TrimSpace(value)
	if len(trimmedValue) == 0 {
		return nil, nil
	}
	var views []string
	if decodingError := json.Unmarshal([]byte(trimmedValue), &views); decodingError != nil {
		literalViews, literalError := parseListLiteral(trimmedValue)
		if literalError != nil {
			return nil, literalError
		}
		views = literalViews
	}
	if len(views) == 0 {
		return nil, nil
	}
	return views, nil
}

type rowDecoder struct {
	columns map[string]int
	fields  []string
	line    int
	item    Item
}

func (decoder *rowDecoder) cell(column string) string {
	index, present := decoder.columns[column]
	if !present || index >= len(decoder.fields) {
		return ""
	}
	return decoder.fields[index]
}

func (decoder *rowDecoder) fail(column string, cause error) RowError {
	return RowError{Line: decoder.line, Column: column, Item: decoder.item, Cause: cause}
}

func (decoder *rowDecoder) decodeItem() error {
	decoder.item.ProjectName = decoder.cell(columnProjectNameConstant)
	decoder.item.ObjectName = decoder.cell(columnNameConstant)
	decoder.item.StagedPath = decoder.cell(columnPathConstant)
	decoder.item.Detail = decoder.cell(columnDetailsConstant)

	sequence, sequenceError := strconv.Atoi(strings.TrimSpace(decoder.cell(columnSequenceConstant)))
	if sequenceError != nil {
		return decoder.fail(columnSequenceConstant, sequenceError)
	}
	decoder.item.Sequence = sequence

	kind, kindError := content.ParseKind(decoder.cell(columnTypeConstant))
	if kindError != nil {
		return decoder.fail(columnTypeConstant, kindError)
	}
	decoder.item.Kind = kind

	outcome, outcomeError := ParseOutcome(decoder.cell(columnResponseConstant))
	if outcomeError != nil {
		return decoder.fail(columnResponseConstant, outcomeError)
	}
	decoder.item.Outcome = outcome
	return nil
}

func decodeDownloadRecord(decoder *rowDecoder) (DownloadRecord, error) {
	if itemError := decoder.decodeItem(); itemError != nil {
		return DownloadRecord{Item: decoder.item}, itemError
	}
	record := DownloadRecord{Item: decoder.item}
	if record.Kind != content.KindWorkbook {
		return record, nil
	}

	views, viewsError := decodeViewList(decoder.cell(columnViewsConstant))
	if viewsError != nil {
		return record, decoder.fail(columnViewsConstant, viewsError)
	}
	record.Workbook = &WorkbookState{
		ShowTabs:     decodeShowTabs(decoder.cell(columnShowTabsConstant)),
		VisibleViews: views,
	}
	return record, nil
}

func decodePublishRecord(decoder *rowDecoder) (PublishRecord, error) {
	if itemError := decoder.decodeItem(); itemError != nil {
		return PublishRecord{Item: decoder.item}, itemError
	}
	record := PublishRecord{Item: decoder.item}
	if record.Kind != content.KindWorkbook {
		return record, nil
	}

	hiddenViews, viewsError := decodeViewList(decoder.cell(columnHiddenViewsConstant))
	if viewsError != nil {
		return record, decoder.fail(columnHiddenViewsConstant, viewsError)
	}
	record.Workbook = &WorkbookPublishState{
		ShowTabs:    decodeShowTabs(decoder.cell(columnShowTabsConstant)),
		HiddenViews: hiddenViews,
	}
	return record, nil
}
