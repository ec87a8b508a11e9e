package client

import (
	"errors"
	"net/http"
	"testing"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

func TestDecodeEnvelope(t *testing.T) {
	t.Run("success with data", func(t *testing.T) {
		var tasks []domain.Task
		err := DecodeEnvelope(http.StatusOK, []byte(`{"success":true,"data":[{"id":1,"title":"a","category_id":2}]}`), &tasks)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(tasks) != 1 || tasks[0].ID != 1 || tasks[0].CategoryID != 2 {
			t.Fatalf("unexpected tasks: %#v", tasks)
		}
	})

	t.Run("missing success counts as success", func(t *testing.T) {
		var cats []domain.Category
		if err := DecodeEnvelope(http.StatusOK, []byte(`{"data":[{"id":3,"name":"x"}]}`), &cats); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(cats) != 1 || cats[0].ID != 3 {
			t.Fatalf("unexpected categories: %#v", cats)
		}
	})

	t.Run("null data leaves out untouched", func(t *testing.T) {
		var tasks []domain.Task
		if err := DecodeEnvelope(http.StatusOK, []byte(`{"success":true,"data":null}`), &tasks); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if tasks != nil {
			t.Fatalf("expected nil slice, got %#v", tasks)
		}
	})

	t.Run("business failure", func(t *testing.T) {
		err := DecodeEnvelope(http.StatusOK, []byte(`{"success":false,"error":{"message":"Catégorie introuvable"}}`), nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if apiErr.Message != "Catégorie introuvable" {
			t.Fatalf("unexpected message %q", apiErr.Message)
		}
	})

	t.Run("failure without message uses status text", func(t *testing.T) {
		err := DecodeEnvelope(http.StatusNotFound, []byte(`{"success":false}`), nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Message != http.StatusText(http.StatusNotFound) || apiErr.Status != http.StatusNotFound {
			t.Fatalf("unexpected error: %#v", err)
		}
	})

	t.Run("validation fields", func(t *testing.T) {
		err := DecodeEnvelope(http.StatusBadRequest, []byte(`{"success":false,"error":{"message":"validation failed","fields":{"title":"is required"}}}`), nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Fields["title"] != "is required" {
			t.Fatalf("unexpected error: %#v", err)
		}
	})

	t.Run("error status without envelope", func(t *testing.T) {
		err := DecodeEnvelope(http.StatusBadGateway, []byte(`<html>bad gateway</html>`), nil)
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadGateway {
			t.Fatalf("expected APIError for gateway failure, got %#v", err)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		err := DecodeEnvelope(http.StatusOK, []byte(`not json`), nil)
		var tErr *TransportError
		if !errors.As(err, &tErr) {
			t.Fatalf("expected TransportError, got %v", err)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		if err := DecodeEnvelope(http.StatusOK, nil, nil); err != nil {
			t.Fatalf("expected empty success body to pass, got %v", err)
		}
	})
}
