// Package dummydata holds the fixtures served in dummy mode.
package dummydata

import (
	"fmt"
	"time"

	"aksara/internal/models"
)

// Account is a login accepted in dummy mode.
type Account struct {
	User     models.User
	Password string
}

// Accounts returns fresh copies of the seeded dummy accounts.
func Accounts() []Account {
	created := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)
	return []Account{
		{Password: "admin123", User: models.User{ID: "1", Username: "admin", DisplayName: "Administrator", Email: "admin@aksara.ai", Role: models.RoleAdmin, IsActive: true, CreatedAt: created}},
		{Password: "user123", User: models.User{ID: "2", Username: "user", DisplayName: "User Test", Email: "user@aksara.ai", Role: models.RoleUser, IsActive: true, CreatedAt: created}},
		{Password: "demo123", User: models.User{ID: "3", Username: "demo", DisplayName: "Demo User", Email: "demo@aksara.ai", Role: models.RoleUser, IsActive: true, CreatedAt: created}},
	}
}

// Greeting is the assistant message that opens every new chat.
const Greeting = "Halo! Selamat datang di Aksara AI. Bagaimana saya bisa membantu Anda hari ini?"

// Replies returns the canned assistant answers for input.
func Replies(input string) []string {
	runes := []rune(input)
	if len(runes) > 20 {
		runes = runes[:20]
	}
	return []string{
		fmt.Sprintf("Mengenai \"%s...\", saya pikir hal ini sangat menarik untuk dibahas.", string(runes)),
		"Itu pertanyaan yang menarik! Mari saya bantu Anda dengan hal tersebut.",
		"Saya memahami apa yang Anda maksud. Berikut adalah pendapat saya...",
		"Berdasarkan pemahaman saya, hal ini bisa didekati dengan beberapa cara.",
		"Terima kasih atas pertanyaannya. Saya akan mencoba memberikan jawaban yang membantu.",
		"Itu topik yang kompleks. Mari kita bahas step by step.",
		"Saya senang Anda bertanya tentang hal ini. Berikut penjelasan saya...",
		"Pertanyaan yang bagus! Mari saya jelaskan dengan detail.",
		"Hmm, ini memerlukan pemikiran yang mendalam. Menurut saya...",
		"Saya dapat membantu dengan itu. Berikut adalah solusi yang saya rekomendasikan:",
		"Terima kasih telah berbagi. Saya pikir pendekatan terbaik adalah...",
	}
}

// Conversations returns the seeded conversation details, newest first.
func Conversations() []models.ConversationDetail {
	at := func(s string) time.Time {
		t, _ := time.Parse(time.RFC3339, s)
		return t
	}
	transformer := []models.Message{
		{ID: 1, ConversationID: "c0a80154-7c2b-4f6d-9a2b-1a2b3c4d5e6f", Sender: models.SenderUser, Text: "Halo, bisakah kamu menjelaskan bagaimana arsitektur Transformer bekerja?", CreatedAt: at("2025-09-27T12:34:56Z")},
		{ID: 2, ConversationID: "c0a80154-7c2b-4f6d-9a2b-1a2b3c4d5e6f", Sender: models.SenderAssistant, Text: "Tentu! Arsitektur Transformer adalah model deep learning yang menggunakan mekanisme attention untuk memproses data sekuensial...", CreatedAt: at("2025-09-27T12:35:30Z")},
		{ID: 3, ConversationID: "c0a80154-7c2b-4f6d-9a2b-1a2b3c4d5e6f", Sender: models.SenderUser, Text: "Bisakah kamu memberikan contoh aplikasinya?", CreatedAt: at("2025-09-27T12:36:10Z")},
		{ID: 4, ConversationID: "c0a80154-7c2b-4f6d-9a2b-1a2b3c4d5e6f", Sender: models.SenderAssistant, Text: "Tentu! Transformer banyak digunakan dalam pemrosesan bahasa alami, seperti dalam model GPT dan BERT...", CreatedAt: at("2025-09-27T12:36:45Z")},
	}
	notes := []models.Message{
		{ID: 5, ConversationID: "d4f5a6b7-c8d9-40e1-9f2a-0b1c2d3e4f50", Sender: models.SenderUser, Text: "Ini catatan prompt saya untuk hari ini.", CreatedAt: at("2025-09-26T09:10:00Z")},
		{ID: 6, ConversationID: "d4f5a6b7-c8d9-40e1-9f2a-0b1c2d3e4f50", Sender: models.SenderAssistant, Text: "Bisa tolong ringkas poin-poin utamanya?", CreatedAt: at("2025-09-26T09:15:10Z")},
	}
	trip := []models.Message{
		{ID: 7, ConversationID: "e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", Sender: models.SenderUser, Text: "Saya ingin merencanakan liburan ke Yogyakarta.", CreatedAt: at("2025-09-25T18:30:00Z")},
		{ID: 8, ConversationID: "e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", Sender: models.SenderAssistant, Text: "Ide bagus! Berapa lama Anda akan tinggal di sana?", CreatedAt: at("2025-09-25T18:35:00Z")},
		{ID: 9, ConversationID: "e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", Sender: models.SenderUser, Text: "Sekitar tiga hari.", CreatedAt: at("2025-09-25T18:40:00Z")},
		{ID: 10, ConversationID: "e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", Sender: models.SenderAssistant, Text: "Tiga hari cukup untuk Malioboro, Prambanan, dan Borobudur.", CreatedAt: at("2025-09-25T18:42:00Z")},
		{ID: 11, ConversationID: "e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", Sender: models.SenderUser, Text: "Apa rekomendasi tempat makan di sana?", CreatedAt: at("2025-09-25T18:45:30Z")},
	}
	detail := func(id, title string, active bool, messages []models.Message) models.ConversationDetail {
		last := messages[len(messages)-1]
		return models.ConversationDetail{
			ConversationSummary: models.ConversationSummary{
				ConversationID:     id,
				Title:              title,
				LastMessagePreview: last.Text,
				LastSender:         last.Sender,
				LastTimestamp:      last.CreatedAt,
				TotalMessages:      len(messages),
				Model:              "gemini-2.5-flash",
				Language:           "id",
				IsActive:           active,
				CreatedDate:        messages[0].CreatedAt,
			},
			Messages: messages,
		}
	}
	return []models.ConversationDetail{
		detail("c0a80154-7c2b-4f6d-9a2b-1a2b3c4d5e6f", "Diskusi tentang arsitektur Transformer", true, transformer),
		detail("d4f5a6b7-c8d9-40e1-9f2a-0b1c2d3e4f50", "Catatan harian prompt", false, notes),
		detail("e1f2a3b4-c5d6-47e8-9a0b-1c2d3e4f5a6b", "Rencana perjalanan liburan", true, trip),
	}
}
