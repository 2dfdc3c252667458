package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"escalafin-messaging/internal/conversation"
	"escalafin-messaging/internal/database/dbtest"
	"escalafin-messaging/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeWAHA struct {
	mu     sync.Mutex
	db     *gorm.DB
	status int
	chats  []string
	paths  []string
	// pending counts PENDING outbound rows seen while each request was in flight
	pending []int64
}

func (f *fakeWAHA) handler(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body struct {
		ChatID string `json:"chatId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.chats = append(f.chats, body.ChatID)
	f.paths = append(f.paths, r.URL.Path)
	if f.db != nil {
		var count int64
		_ = f.db.Model(&models.ConversationMessage{}).
			Where("status = ? AND direction = ?", models.MessagePending, models.DirectionOutbound).
			Count(&count).Error
		f.pending = append(f.pending, count)
	}
	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	_, _ = w.Write([]byte(`{"id":"wamid-1"}`))
}

func newGatewayFixture(t *testing.T) (*Gateway, *fakeWAHA, *gorm.DB, models.Client) {
	t.Helper()
	db := dbtest.New(t)
	fake := &fakeWAHA{db: db}
	srv := httptest.NewServer(http.HandlerFunc(fake.handler))
	t.Cleanup(srv.Close)

	require.NoError(t, db.Create(&models.WahaConfig{SessionID: "default", BaseURL: srv.URL, IsActive: true}).Error)
	client := models.Client{FirstName: "Ana", Phone: "4421234567"}
	require.NoError(t, db.Create(&client).Error)

	store := conversation.NewStore(db, nil)
	gw := NewGateway(NewClient(time.Second, nil), NewDBLoader(db), store, GatewayOptions{DefaultCountryCode: "52", ChatSuffix: "@c.us"}, nil)
	return gw, fake, db, client
}

func TestGatewaySendTextRecordsSentMessage(t *testing.T) {
	gw, fake, db, client := newGatewayFixture(t)

	msg, err := gw.SendText(context.Background(), TextRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone},
		Text:      "Hola Ana",
		Category:  models.CategoryPaymentReceived,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"524421234567@c.us"}, fake.chats)
	assert.Equal(t, []int64{1}, fake.pending, "row is stored PENDING before the provider call")
	assert.Equal(t, models.MessageSent, msg.Status)
	assert.Equal(t, models.DirectionOutbound, msg.Direction)
	require.NotNil(t, msg.ExternalMessageID)
	assert.Equal(t, "wamid-1", *msg.ExternalMessageID)
	assert.NotNil(t, msg.SentAt)

	var stored models.ConversationMessage
	require.NoError(t, db.First(&stored, msg.ID).Error)
	assert.Equal(t, models.CategoryPaymentReceived, stored.Category)
	assert.Equal(t, `{"id":"wamid-1"}`, stored.ProviderResponse)
}

func TestGatewayProviderFailureMarksFailed(t *testing.T) {
	gw, fake, db, client := newGatewayFixture(t)
	fake.status = http.StatusInternalServerError

	msg, err := gw.SendText(context.Background(), TextRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone},
		Text:      "Hola",
	})
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusInternalServerError, perr.StatusCode)

	require.NotNil(t, msg)
	assert.Equal(t, models.MessageFailed, msg.Status)
	assert.NotEmpty(t, msg.ErrorMessage)
	assert.Nil(t, msg.ExternalMessageID)
	assert.Len(t, fake.chats, 1, "no retry")
	assert.Equal(t, []int64{1}, fake.pending)

	var stored models.ConversationMessage
	require.NoError(t, db.Where("status = ?", models.MessageFailed).First(&stored).Error)
	assert.Equal(t, msg.ID, stored.ID)
	assert.Nil(t, stored.ExternalMessageID)
}

func TestGatewayNotConfigured(t *testing.T) {
	gw, fake, db, client := newGatewayFixture(t)
	require.NoError(t, db.Model(&models.WahaConfig{}).Where("1 = 1").Update("is_active", false).Error)

	_, err := gw.SendText(context.Background(), TextRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone},
		Text:      "Hola",
	})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.Empty(t, fake.chats)

	var count int64
	require.NoError(t, db.Model(&models.ConversationMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestGatewaySendMediaUsesMimeType(t *testing.T) {
	gw, fake, _, client := newGatewayFixture(t)
	ctx := context.Background()

	img, err := gw.SendMedia(ctx, MediaRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone},
		MediaURL:  "https://cdn.example.com/recibo.jpg",
		Caption:   "Tu recibo",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageImage, img.MessageType)
	assert.Equal(t, "Tu recibo", img.Content)

	doc, err := gw.SendMedia(ctx, MediaRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone},
		MediaURL:  "https://cdn.example.com/estado.pdf",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MessageDocument, doc.MessageType)
	assert.Equal(t, img.ConversationID, doc.ConversationID)

	assert.Equal(t, []string{"/api/sendImage", "/api/sendFile"}, fake.paths)
}

func TestGatewayPinnedConversation(t *testing.T) {
	gw, _, db, client := newGatewayFixture(t)

	resolved := models.Conversation{ClientID: client.ID, Phone: client.Phone, Status: models.ConversationResolved}
	require.NoError(t, db.Create(&resolved).Error)

	msg, err := gw.SendText(context.Background(), TextRequest{
		Recipient: Recipient{ClientID: client.ID, Phone: client.Phone, ConversationID: resolved.ID},
		Text:      "seguimiento",
		Category:  models.CategoryManual,
	})
	require.NoError(t, err)
	assert.Equal(t, resolved.ID, msg.ConversationID)
}

func TestGatewayValidation(t *testing.T) {
	gw, _, _, client := newGatewayFixture(t)
	_, err := gw.SendText(context.Background(), TextRequest{Recipient: Recipient{ClientID: client.ID, Phone: client.Phone}})
	assert.Error(t, err)
	_, err = gw.SendMedia(context.Background(), MediaRequest{Recipient: Recipient{ClientID: client.ID, Phone: client.Phone}})
	assert.Error(t, err)
}
