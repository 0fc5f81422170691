package serverclient

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/temirov/tabmigrate/internal/content"
)

const (
	mixedMultipartMediaTypeConstant        = "multipart/mixed; boundary="
	octetStreamMediaTypeConstant           = "application/octet-stream"
	requestPayloadPartNameConstant         = "request_payload"
	filePartNamePrefixConstant             = "tableau_"
	payloadPartDispositionTemplateConstant = `form-data; name="%s"`
	filePartDispositionTemplateConstant    = `form-data; name="%s"; filename="%s"`
	artifactOpenErrorTemplateConstant      = "unable to open staged artifact %s: %w"
)

// newPublishBodyFactory streams a multipart/mixed publish body: a JSON request
// payload part followed by the artifact file part. Each call reopens the file so
// retried attempts send the full body again.
func newPublishBodyFactory(kind content.Kind, payload any, filePath string) requestBodyFactory {
	return func() (io.ReadCloser, string, error) {
		encodedPayload, encodingError := json.Marshal(payload)
		if encodingError != nil {
			return nil, "", encodingError
		}

		artifact, openError := os.Open(filePath)
		if openError != nil {
			return nil, "", fmt.Errorf(artifactOpenErrorTemplateConstant, filePath, openError)
		}

		pipeReader, pipeWriter := io.Pipe()
		multipartWriter := multipart.NewWriter(pipeWriter)
		contentType := mixedMultipartMediaTypeConstant + multipartWriter.Boundary()

		go func() {
			writeError := writePublishParts(multipartWriter, filePartNamePrefixConstant+string(kind), encodedPayload, artifact)
			closeError := artifact.Close()
			if writeError == nil {
				writeError = closeError
			}
			pipeWriter.CloseWithError(writeError)
		}()

		return pipeReader, contentType, nil
	}
}

func writePublishParts(multipartWriter *multipart.Writer, filePartName string, encodedPayload []byte, artifact *os.File) error {
	payloadHeader := textproto.MIMEHeader{}
	payloadHeader.Set(contentDispositionHeaderConstant, fmt.Sprintf(payloadPartDispositionTemplateConstant, requestPayloadPartNameConstant))
	payloadHeader.Set(contentTypeHeaderConstant, jsonMediaTypeConstant)
	payloadPart, payloadPartError := multipartWriter.CreatePart(payloadHeader)
	if payloadPartError != nil {
		return payloadPartError
	}
	if _, writeError := payloadPart.Write(encodedPayload); writeError != nil {
		return writeError
	}

	fileHeader := textproto.MIMEHeader{}
	fileHeader.Set(contentDispositionHeaderConstant, fmt.Sprintf(filePartDispositionTemplateConstant, filePartName, filepath.Base(artifact.Name())))
	fileHeader.Set(contentTypeHeaderConstant, octetStreamMediaTypeConstant)
	filePart, filePartError := multipartWriter.CreatePart(fileHeader)
	if filePartError != nil {
		return filePartError
	}
	if _, copyError := io.Copy(filePart, artifact); copyError != nil {
		return copyError
	}

	return multipartWriter.Close()
}
