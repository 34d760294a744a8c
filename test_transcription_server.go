package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type TranscriptionResponse struct {
	Text        string    `json:"text"`
	Language    string    `json:"language"`
	Duration    float64   `json:"duration"`
	ProcessedAt time.Time `json:"processed_at"`
}

func transcribeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Parse multipart form
	err := r.ParseMultipartForm(32 << 20) // 32 MB
	if err != nil {
		http.Error(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	model := r.FormValue("model")
	language := r.FormValue("language")
	requestID := r.FormValue("request_id")
	responseFormat := r.FormValue("response_format")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Error getting audio file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	log.Printf("🎤 TRANSCRIPTION REQUEST RECEIVED:")
	log.Printf("    Request ID: %s", requestID)
	log.Printf("    Model: %s", model)
	log.Printf("    Language: %s", language)
	log.Printf("    Response format: %s", responseFormat)
	log.Printf("    Filename: %s", header.Filename)
	log.Printf("    Audio size: %d bytes", header.Size)

	// Simulate processing time
	time.Sleep(200 * time.Millisecond)

	response := TranscriptionResponse{
		Text:        "This is a test transcription of the uploaded recording",
		Language:    language,
		Duration:    1.5,
		ProcessedAt: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(response)

	log.Printf("✅ TRANSCRIPTION RESPONSE SENT: '%s'", response.Text)
	log.Println("---")
}

func main() {
	http.HandleFunc("/v1/audio/transcriptions", transcribeHandler)

	port := ":9000"
	log.Printf("🚀 Test Transcription Server starting on port %s", port)
	log.Printf("📡 Endpoint: http://localhost%s/v1/audio/transcriptions", port)
	log.Println("💡 Update your config to use: http://localhost:9000/v1/audio/transcriptions")

	if err := http.ListenAndServe(port, nil); err != nil {
		log.Fatal("Server failed to start:", err)
	}
}
