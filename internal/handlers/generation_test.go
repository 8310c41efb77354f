package handlers

import (
	"testing"
	"time"

	"avatarbackend/internal/models"

	"github.com/go-playground/validator/v10"
)

func TestGenerateAudioRequestValidation(t *testing.T) {
	validate := validator.New()

	cases := []struct {
		name    string
		req     models.GenerateAudioRequest
		wantErr bool
	}{
		{"valid", models.GenerateAudioRequest{Text: "hello there", VoiceID: "avatar-1"}, false},
		{"missing text", models.GenerateAudioRequest{VoiceID: "avatar-1"}, true},
		{"missing voice id", models.GenerateAudioRequest{Text: "hello"}, true},
		{"text too long", models.GenerateAudioRequest{Text: string(make([]byte, 1001)), VoiceID: "avatar-1"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(tc.req)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no validation error, got %v", err)
			}
		})
	}
}

func TestGenerateVideoRequestValidation(t *testing.T) {
	validate := validator.New()

	cases := []struct {
		name    string
		req     models.GenerateVideoRequest
		wantErr bool
	}{
		{"valid script", models.GenerateVideoRequest{AvatarID: "avatar-1", Quality: "fast", InputType: "script", Text: "hi"}, false},
		{"valid audio", models.GenerateVideoRequest{AvatarID: "avatar-1", Quality: "standard", InputType: "audio", AudioURL: "https://example.com/a.mp3"}, false},
		{"missing avatar id", models.GenerateVideoRequest{Quality: "fast", InputType: "script"}, true},
		{"bad quality", models.GenerateVideoRequest{AvatarID: "avatar-1", Quality: "ultra", InputType: "script"}, true},
		{"bad input type", models.GenerateVideoRequest{AvatarID: "avatar-1", Quality: "fast", InputType: "telepathy"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validate.Struct(tc.req)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("expected no validation error, got %v", err)
			}
		})
	}
}

func TestToStatusResponseOmitsVideoURLUnlessCompleted(t *testing.T) {
	url := "https://cdn.example.com/out.mp4"
	job := &models.GenerationJob{
		ID:        "job-1",
		Status:    models.JobStatusProcessing,
		Progress:  40,
		ResultURL: &url,
		CreatedAt: time.Now(),
	}

	resp := toStatusResponse(job)
	if resp.VideoURL != nil {
		t.Fatal("expected VideoURL to be nil while job is still processing")
	}

	job.Status = models.JobStatusCompleted
	resp = toStatusResponse(job)
	if resp.VideoURL == nil || *resp.VideoURL != url {
		t.Fatal("expected VideoURL to be populated once the job has completed")
	}
}

func TestToStatusResponsePropagatesErrorForFailedJob(t *testing.T) {
	// Confirms the status response shape toStatusResponse produces for a
	// terminal, failed job: the error message is carried and no video URL.
	errMsg := "synthesis upstream rejected the request"
	job := &models.GenerationJob{
		ID:           "job-2",
		Status:       models.JobStatusFailed,
		ErrorMessage: &errMsg,
		CreatedAt:    time.Now(),
	}

	resp := toStatusResponse(job)
	if resp.ErrorMessage == nil || *resp.ErrorMessage != errMsg {
		t.Fatal("expected ErrorMessage to propagate to the status response")
	}
	if resp.VideoURL != nil {
		t.Fatal("expected no VideoURL on a failed job")
	}
}
