package calendar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	config "github.com/edmondmuhia/mentor_marketplace/configs"
)

// MeetingEvent is the scheduling service's view of a created event.
type MeetingEvent struct {
	EventID     string `json:"event_id"`
	MeetingLink string `json:"meeting_link"`
	HTMLLink    string `json:"html_link"`
}

// EventDetails describes the meeting to create.
type EventDetails struct {
	Summary       string   `json:"summary"`
	StartsAt      string   `json:"starts_at"` // RFC3339
	DurationMins  int      `json:"duration_mins"`
	AttendeeEmails []string `json:"attendee_emails"`
}

// Service is the calendar collaborator. Event deletion is best-effort
// everywhere it is used: callers log failures and carry on.
type Service interface {
	CreateMeetingEvent(details EventDetails) (*MeetingEvent, error)
	DeleteMeetingEvent(eventID string) error
}

// HTTPService talks to the internal scheduling service that owns the Google
// Calendar integration.
type HTTPService struct {
	BaseURL string
	APIKey  string
	client  *http.Client
}

func NewHTTPService() *HTTPService {
	baseURL := config.Config("CALENDAR_API_URL")
	apiKey := config.Config("CALENDAR_API_KEY")

	if baseURL == "" {
		log.Println("⚠️ Calendar service not configured. Missing CALENDAR_API_URL.")
	}

	return &HTTPService{
		BaseURL: baseURL,
		APIKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPService) CreateMeetingEvent(details EventDetails) (*MeetingEvent, error) {
	body, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %v", err)
	}

	req, err := http.NewRequest("POST", s.BaseURL+"/v1/events", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("content-type", "application/json")
	req.Header.Set("api-key", s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("calendar API error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}

	var event MeetingEvent
	if err := json.NewDecoder(resp.Body).Decode(&event); err != nil {
		return nil, fmt.Errorf("failed to decode event response: %v", err)
	}
	return &event, nil
}

func (s *HTTPService) DeleteMeetingEvent(eventID string) error {
	req, err := http.NewRequest("DELETE", s.BaseURL+"/v1/events/"+eventID, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("api-key", s.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("calendar API error: status %d, body: %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}
