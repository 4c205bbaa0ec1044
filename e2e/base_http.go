package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"

	"nestchat/auth"
)

type BaseHTTPSuite struct {
	suite.Suite
	Config   Config
	verifier *auth.Verifier
	client   *http.Client
}

// SetupSuite loads the environment configuration before running tests
// and skips the whole suite when no server address is provided.
func (s *BaseHTTPSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	if s.Config.BaseURL == "" {
		s.T().Skip("E2E_BASE_URL not set, skipping end-to-end suite")
	}
	s.verifier = auth.NewVerifier(s.Config.TokenSecret)
	s.client = &http.Client{Timeout: 30 * time.Second}
}

// Step prints a colorized header for one scenario step in logs.
func (s *BaseHTTPSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Do sends one authenticated JSON request and decodes the response,
// with optional body dumping for debugging.
func (s *BaseHTTPSuite) Do(t *testing.T, userID, method, path string, body, out any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.Config.BaseURL+path, reader)
	s.Require().NoError(err)
	token, err := s.verifier.GenerateToken(userID, time.Hour)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err, "Failed to reach server at "+s.Config.BaseURL)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	logBuilder := strings.Builder{}
	fmt.Fprintf(&logBuilder, "HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		fmt.Fprintln(&logBuilder, "\nRESPONSE:")
		fmt.Fprintln(&logBuilder, string(raw))
	}
	t.Log(logBuilder.String())

	if out != nil && len(raw) > 0 {
		s.Require().NoError(json.Unmarshal(raw, out))
	}
	return resp
}
