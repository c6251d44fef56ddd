package errors_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	apierr "github.com/whole-tale/gwvolman/pkg/api/errors"
)

func TestNew(t *testing.T) {
	cause := errors.New("fake cause")
	herr := apierr.New(
		http.StatusConflict, "reason",
		apierr.WithAdvice("advice"), apierr.WithError(cause),
	)

	if herr.Code != http.StatusConflict {
		t.Errorf("code: %d", herr.Code)
	}
	msg, ok := herr.Message.(apierr.ErrorMessage)
	if !ok {
		t.Fatalf("message is not ErrorMessage: %#v", herr.Message)
	}
	if msg.Reason != "reason" || msg.Advice != "advice" {
		t.Errorf("message: %+v", msg)
	}
	if !errors.Is(herr, cause) {
		t.Errorf("cause is not wrapped: %+v", herr)
	}
	if s := msg.Error(); s != "reason (advice): fake cause" {
		t.Errorf("unexpected error string: %s", s)
	}
}

func TestErrorMessage_JSON(t *testing.T) {
	t.Run("it hides cause", func(t *testing.T) {
		b, err := json.Marshal(apierr.ErrorMessage{
			Reason: "reason", Cause: errors.New("secret"),
		})
		if err != nil {
			t.Fatal(err)
		}
		if string(b) != `{"reason":"reason"}` {
			t.Errorf("unexpected json: %s", b)
		}
	})

	t.Run("it requires reason", func(t *testing.T) {
		em := apierr.ErrorMessage{}
		if err := json.Unmarshal([]byte(`{"advice":"a"}`), &em); err == nil {
			t.Error("no error")
		}
	})

	t.Run("it reads reason and advice", func(t *testing.T) {
		em := apierr.ErrorMessage{}
		if err := json.Unmarshal([]byte(`{"reason":"r","advice":"a"}`), &em); err != nil {
			t.Fatal(err)
		}
		if em.Reason != "r" || em.Advice != "a" {
			t.Errorf("unexpected: %+v", em)
		}
	})
}

func TestErrorMessage_Response(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	e.DefaultHTTPErrorHandler(apierr.BadRequest(`"task" is required`, errors.New("secret")), c)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("unexpected status: %d", rec.Code)
	}
	actual := apierr.ErrorMessage{}
	if err := json.Unmarshal(rec.Body.Bytes(), &actual); err != nil {
		t.Fatalf("body is not error message: %s (%s)", rec.Body.String(), err)
	}
	if actual.Reason != "bad request" || actual.Advice != `"task" is required` {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}
