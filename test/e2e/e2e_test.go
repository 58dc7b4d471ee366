//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/stemsi/nexus-backend/internal/config"
	"github.com/stemsi/nexus-backend/internal/model"
	"github.com/stemsi/nexus-backend/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8050"
	studentID      = "e2e-student"
	adminID        = "e2e-admin"
)

var (
	baseURL      string
	adminToken   string
	studentToken string
	lastResultID string
)

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	// Tokens are signed with the same secret the server reads.
	cfg := config.Load()
	auth := service.NewAuthService(cfg)
	var err error
	if adminToken, err = auth.GenerateToken(adminID, service.RoleAdmin); err != nil {
		fmt.Printf("Issue admin token failed: %v\n", err)
		os.Exit(1)
	}
	if studentToken, err = auth.GenerateToken(studentID, service.RoleStudent); err != nil {
		fmt.Printf("Issue student token failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.DatabaseURL != "" {
		if err := cleanDaily(cfg.DatabaseURL); err != nil {
			fmt.Printf("Setup failed: %v\n", err)
			os.Exit(1)
		}
	}

	os.Exit(m.Run())
}

// cleanDaily removes attempts left by earlier runs so the one-attempt rule
// does not block the daily flow.
func cleanDaily(dbURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, `DELETE FROM daily_attempts WHERE user_id = ANY($1)`, []string{studentID, adminID}); err != nil {
		return fmt.Errorf("cleanup daily_attempts: %w", err)
	}
	return nil
}

func samplePaper() []model.Question {
	return []model.Question{
		{ID: "e2e-1", Subject: model.SubjectPhysics, Type: model.QuestionTypeMCQ, Statement: "g on earth?",
			Options: []string{"9.8", "1.6", "24.8", "3.7"}, CorrectAnswer: "0"},
		{ID: "e2e-2", Subject: model.SubjectChemistry, Type: model.QuestionTypeMCQ, Statement: "noble gases?",
			Options: []string{"He", "N", "Ne", "O"}, CorrectAnswer: "0,2"},
		{ID: "e2e-3", Subject: model.SubjectMathematics, Type: model.QuestionTypeNumerical, Statement: "2+2",
			CorrectAnswer: "4"},
	}
}

type snapshotBody struct {
	Data struct {
		State     string `json:"state"`
		Remaining int    `json:"remaining_seconds"`
	} `json:"data"`
}

func TestE2EFlow(t *testing.T) {
	t.Run("Health", func(t *testing.T) {
		resp, err := get("/health", "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	t.Run("RejectsMissingToken", func(t *testing.T) {
		resp, err := get("/api/v1/exams/active", "")
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", resp.StatusCode)
		}
	})

	t.Run("StartPractice", func(t *testing.T) {
		resp, err := post("/api/v1/exams", model.StartExamRequest{Type: "E2E Practice", Questions: samplePaper()}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body snapshotBody
		decodeJSON(t, resp, &body)
		if body.Data.State != "active" || body.Data.Remaining <= 0 {
			t.Fatalf("snapshot = %+v", body.Data)
		}
	})

	t.Run("AnswerAndNavigate", func(t *testing.T) {
		resp, err := put("/api/v1/exams/active/answer", model.AnswerRequest{Answer: "0"}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("answer status %d", resp.StatusCode)
		}

		resp, err = post("/api/v1/exams/active/navigate", model.NavigateRequest{Direction: "jump", Index: 2}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("navigate status %d", resp.StatusCode)
		}

		resp, err = put("/api/v1/exams/active/answer", model.AnswerRequest{Answer: " 4 "}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()

		resp, err = post("/api/v1/exams/active/navigate", model.NavigateRequest{Direction: "next"}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				ConfirmSubmit bool `json:"confirm_submit"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if !body.Data.ConfirmSubmit {
			t.Error("next on the last question should ask for confirmation")
		}
	})

	t.Run("Submit", func(t *testing.T) {
		resp, err := post("/api/v1/exams/active/submit", nil, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}

		var body struct {
			Data model.Result `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if body.Data.Score != 8 || body.Data.TotalPossible != 12 {
			t.Errorf("score = %d/%d, want 8/12", body.Data.Score, body.Data.TotalPossible)
		}
		lastResultID = body.Data.ID
	})

	t.Run("SessionGoneAfterSubmit", func(t *testing.T) {
		resp, err := get("/api/v1/exams/active", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Fatalf("status %d, want 404", resp.StatusCode)
		}
	})

	t.Run("Results", func(t *testing.T) {
		resp, err := get("/api/v1/results/"+lastResultID, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("result by id status %d", resp.StatusCode)
		}

		resp, err = get("/api/v1/results/history?page=1&per_page=5", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Results []model.ResultSummary `json:"results"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		if len(body.Data.Results) == 0 || body.Data.Results[0].ID != lastResultID {
			t.Errorf("history does not start with the last result")
		}
	})

	t.Run("AdminOnlyRoutes", func(t *testing.T) {
		resp, err := post("/api/v1/admin/daily/publish", model.PublishDailyRequest{Questions: samplePaper()}, studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status %d, want 403", resp.StatusCode)
		}
	})

	t.Run("PublishDaily", func(t *testing.T) {
		resp, err := post("/api/v1/admin/daily/publish", model.PublishDailyRequest{Questions: samplePaper()}, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	// Admins bypass the opening time, so the flow does not depend on the clock.
	t.Run("DailyOnce", func(t *testing.T) {
		resp, err := post("/api/v1/daily/start", nil, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("start status %d", resp.StatusCode)
		}

		resp, err = post("/api/v1/exams/active/submit", nil, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("submit status %d", resp.StatusCode)
		}

		resp, err = post("/api/v1/daily/start", nil, adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("second start status %d, want 409", resp.StatusCode)
		}

		resp, err = get("/api/v1/daily/result", adminToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("result status %d", resp.StatusCode)
		}
	})

	t.Run("Leaderboard", func(t *testing.T) {
		resp, err := get("/api/v1/daily/leaderboard", studentToken)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		defer resp.Body.Close()

		var body struct {
			Data struct {
				Attempts []model.LeaderboardEntry `json:"attempts"`
			} `json:"data"`
		}
		decodeJSON(t, resp, &body)
		found := false
		for _, e := range body.Data.Attempts {
			if e.UserID == adminID {
				found = true
			}
		}
		if !found {
			t.Errorf("leaderboard misses %s", adminID)
		}
	})
}

// Helpers

func send(method, path string, body interface{}, token string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func post(path string, body interface{}, token string) (*http.Response, error) {
	return send(http.MethodPost, path, body, token)
}

func put(path string, body interface{}, token string) (*http.Response, error) {
	return send(http.MethodPut, path, body, token)
}

func get(path string, token string) (*http.Response, error) {
	return send(http.MethodGet, path, nil, token)
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("json decode: %v", err)
	}
}
