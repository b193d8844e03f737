package hms

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/hms/hms-console/internal/platform/apiclient"
	"github.com/hms/hms-console/internal/platform/envelope"
	"github.com/hms/hms-console/pkg/models"
)

// Photo is a downloaded binary image.
type Photo struct {
	ContentType string
	Data        []byte
}

// PatientPhoto downloads a patient's photo.
func (a *API) PatientPhoto(ctx context.Context, id models.ID) (*Photo, error) {
	if err := a.requireAuth(); err != nil {
		return nil, err
	}

	resp, err := a.client.Request(ctx, photoPath(id), apiclient.Options{})
	if err != nil {
		return nil, fmt.Errorf("patient photo %s: %w", id, err)
	}
	if resp.Kind != apiclient.KindBinary {
		return nil, fmt.Errorf("patient photo %s: %w", id, ErrUnexpectedJSON)
	}
	return &Photo{ContentType: resp.ContentType, Data: resp.Binary}, nil
}

// UploadPatientPhoto sends a photo as a multipart form under the field "foto".
func (a *API) UploadPatientPhoto(ctx context.Context, id models.ID, fileName, contentType string, content io.Reader) error {
	if err := a.requireAuth(); err != nil {
		return err
	}

	body, err := apiclient.NewMultipartBody(nil, apiclient.FilePart{
		Field:       "foto",
		FileName:    fileName,
		ContentType: contentType,
		Content:     content,
	})
	if err != nil {
		return err
	}

	resp, err := a.client.Request(ctx, photoPath(id), apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return fmt.Errorf("upload photo %s: %w", id, err)
	}
	if resp.Kind == apiclient.KindJSON {
		env, err := envelope.Decode(resp.JSON)
		if err != nil {
			return fmt.Errorf("upload photo %s: %w", id, err)
		}
		return env.Err()
	}
	return nil
}

// CreatePatient registers a patient. A duplicate document number surfaces
// as an error for which envelope.IsDuplicate is true.
func (a *API) CreatePatient(ctx context.Context, p models.Patient) (models.Patient, error) {
	if err := a.requireAuth(); err != nil {
		return models.Patient{}, err
	}

	body, err := apiclient.MarshalJSON(p)
	if err != nil {
		return models.Patient{}, err
	}
	resp, err := a.client.Request(ctx, "/"+ResourcePatients, apiclient.Options{Method: http.MethodPost, Body: body})
	if err != nil {
		return models.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	if resp.Kind != apiclient.KindJSON {
		return models.Patient{}, fmt.Errorf("create patient: %w", ErrUnexpectedBinary)
	}

	env, err := envelope.Decode(resp.JSON)
	if err != nil {
		return models.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	if err := env.Err(); err != nil {
		return models.Patient{}, fmt.Errorf("create patient: %w", err)
	}
	return envelope.DecodeData[models.Patient](env)
}

func photoPath(id models.ID) string {
	return "/" + ResourcePatients + "/" + url.PathEscape(string(id)) + "/foto"
}
