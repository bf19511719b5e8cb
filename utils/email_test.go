package utils

import (
	"testing"

	"github.com/sharath018/school-management-backend/config"
	"github.com/stretchr/testify/assert"
)

func TestBuildMessage(t *testing.T) {
	msg := string(BuildMessage("School Platform", "noreply@school.test", "a@b.test", "Hello", "text/html", "<p>x</p>"))

	assert.Contains(t, msg, "From: School Platform <noreply@school.test>\r\n")
	assert.Contains(t, msg, "To: a@b.test\r\n")
	assert.Contains(t, msg, "Content-Type: text/html; charset=UTF-8\r\n")
	assert.True(t, len(msg) > 0 && msg[len(msg)-8:] == "<p>x</p>")
}

func TestBuildMessageWithoutName(t *testing.T) {
	msg := string(BuildMessage("", "noreply@school.test", "a@b.test", "Hi", "text/plain", "body"))
	assert.Contains(t, msg, "From: noreply@school.test\r\n")
}

func TestSendWithoutSMTPIsNoop(t *testing.T) {
	InitMailer(&config.Config{})
	assert.NoError(t, SendResetLink("user@school.test", "token"))
	assert.NoError(t, SendHTMLEmail([]string{"a@b.test", "c@d.test"}, "s", "<b>x</b>"))
}

func TestEventCodecRoundTrip(t *testing.T) {
	evt := DomainEvent{Type: EventGuestCheckedIn, SchoolID: 3, ActorID: 7, Payload: map[string]interface{}{"guest_id": float64(11)}}
	data, err := EncodeEvent(evt)
	assert.NoError(t, err)

	back, err := DecodeEvent(data)
	assert.NoError(t, err)
	assert.Equal(t, EventGuestCheckedIn, back.Type)
	assert.Equal(t, uint(3), back.SchoolID)
	assert.Equal(t, float64(11), back.Payload["guest_id"])
}
