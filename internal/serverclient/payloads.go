package serverclient

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	jsonNullLiteralConstant = "null"
)

// FlexibleBool decodes booleans the server may encode either as JSON booleans or strings.
type FlexibleBool bool

// UnmarshalJSON accepts true, false, "true", and "false".
func (value *FlexibleBool) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == jsonNullLiteralConstant {
		*value = false
		return nil
	}

	if trimmed[0] == '"' {
		var textual string
		if decodingError := json.Unmarshal(trimmed, &textual); decodingError != nil {
			return decodingError
		}
		if len(strings.TrimSpace(textual)) == 0 {
			*value = false
			return nil
		}
		parsed, parseError := strconv.ParseBool(strings.TrimSpace(textual))
		if parseError != nil {
			return parseError
		}
		*value = FlexibleBool(parsed)
		return nil
	}

	var parsed bool
	if decodingError := json.Unmarshal(trimmed, &parsed); decodingError != nil {
		return decodingError
	}
	*value = FlexibleBool(parsed)
	return nil
}

// MarshalJSON encodes the value as a string, the form the server documents for attributes.
func (value FlexibleBool) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.FormatBool(bool(value)))
}

type siteReferencePayload struct {
	ID         string `json:"id,omitempty"`
	ContentURL string `json:"contentUrl"`
}

type signInCredentialsPayload struct {
	Name                      string               `json:"name,omitempty"`
	Password                  string               `json:"password,omitempty"`
	PersonalAccessTokenName   string               `json:"personalAccessTokenName,omitempty"`
	PersonalAccessTokenSecret string               `json:"personalAccessTokenSecret,omitempty"`
	Site                      siteReferencePayload `json:"site"`
}

type signInRequestPayload struct {
	Credentials signInCredentialsPayload `json:"credentials"`
}

type signInResponsePayload struct {
	Credentials struct {
		Token string               `json:"token"`
		Site  siteReferencePayload `json:"site"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"credentials"`
}

type errorResponsePayload struct {
	Error struct {
		Code    string `json:"code"`
		Summary string `json:"summary"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

type projectReferencePayload struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type tagPayload struct {
	Label string `json:"label"`
}

type tagsPayload struct {
	Tag []tagPayload `json:"tag,omitempty"`
}

// objectPayload is the listing and publish representation shared by flows, datasources, and workbooks.
type objectPayload struct {
	ID         string                   `json:"id,omitempty"`
	Name       string                   `json:"name,omitempty"`
	WebpageURL string                   `json:"webpageUrl,omitempty"`
	ShowTabs   *FlexibleBool            `json:"showTabs,omitempty"`
	Project    *projectReferencePayload `json:"project,omitempty"`
	Tags       *tagsPayload             `json:"tags,omitempty"`
	Views      *viewsPayload            `json:"views,omitempty"`
}

// viewPayload describes a workbook view.
type viewPayload struct {
	ID     string        `json:"id,omitempty"`
	Name   string        `json:"name"`
	Hidden *FlexibleBool `json:"hidden,omitempty"`
}

// viewsPayload wraps a view collection.
type viewsPayload struct {
	View []viewPayload `json:"view,omitempty"`
}

// projectPayload describes a project.
type projectPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectListPayload struct {
	Projects struct {
		Project []projectPayload `json:"project"`
	} `json:"projects"`
}

type viewListPayload struct {
	Views viewsPayload `json:"views"`
}

// objectListPayload decodes any of the flow, datasource, or workbook listing envelopes.
type objectListPayload struct {
	Flows struct {
		Flow []objectPayload `json:"flow"`
	} `json:"flows"`
	Datasources struct {
		Datasource []objectPayload `json:"datasource"`
	} `json:"datasources"`
	Workbooks struct {
		Workbook []objectPayload `json:"workbook"`
	} `json:"workbooks"`
}

func (listing objectListPayload) objects(kind content.Kind) []objectPayload {
	switch kind {
	case content.KindFlow:
		return listing.Flows.Flow
	case content.KindDatasource:
		return listing.Datasources.Datasource
	case content.KindWorkbook:
		return listing.Workbooks.Workbook
	default:
		return nil
	}
}

// objectEnvelope wraps a single object keyed by its kind, as used by publish requests and responses.
type objectEnvelope struct {
	Flow       *objectPayload `json:"flow,omitempty"`
	Datasource *objectPayload `json:"datasource,omitempty"`
	Workbook   *objectPayload `json:"workbook,omitempty"`
}

func newObjectEnvelope(kind content.Kind, object objectPayload) objectEnvelope {
	switch kind {
	case content.KindFlow:
		return objectEnvelope{Flow: &object}
	case content.KindDatasource:
		return objectEnvelope{Datasource: &object}
	default:
		return objectEnvelope{Workbook: &object}
	}
}

func (envelope objectEnvelope) object(kind content.Kind) *objectPayload {
	switch kind {
	case content.KindFlow:
		return envelope.Flow
	case content.KindDatasource:
		return envelope.Datasource
	case content.KindWorkbook:
		return envelope.Workbook
	default:
		return nil
	}
}

func (object objectPayload) descriptor() content.ObjectDescriptor {
	descriptor := content.ObjectDescriptor{
		ID:         object.ID,
		Name:       object.Name,
		WebpageURL: object.WebpageURL,
		ShowTabs:   object.ShowTabs == nil || bool(*object.ShowTabs),
	}
	if object.Project != nil {
		descriptor.ProjectID = object.Project.ID
		if len(object.Project.Name) > 0 {
			descriptor.ProjectName = content.StringPointer(object.Project.Name)
		}
	}
	if object.Tags != nil {
		for _, tag := range object.Tags.Tag {
			descriptor.Tags = append(descriptor.Tags, tag.Label)
		}
	}
	return descriptor
}

func (view viewPayload) view() content.View {
	return content.View{
		ID:     view.ID,
		Name:   view.Name,
		Hidden: view.Hidden != nil && bool(*view.Hidden),
	}
}
