package gateway

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voxterra/maitred/internal/catalog"
	"github.com/voxterra/maitred/internal/normalize"
	"github.com/voxterra/maitred/internal/segment"
	"github.com/voxterra/maitred/internal/session"
	sttmock "github.com/voxterra/maitred/pkg/provider/stt/mock"
	ttsmock "github.com/voxterra/maitred/pkg/provider/tts/mock"
	"github.com/voxterra/maitred/pkg/types"
)

func testHandler(t *testing.T, transcript string) *Handler {
	t.Helper()

	cat, err := catalog.NewSnapshot([]catalog.Item{
		{ID: "garlic_naan", DisplayName: "Garlic Naan"},
		{ID: "mango_lassi", DisplayName: "Mango Lassi", Aliases: []string{"lassi"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	pipeline, err := normalize.NewPipeline(normalize.DefaultRuleset())
	if err != nil {
		t.Fatal(err)
	}

	h, err := NewHandler(Config{
		SampleRate: 16000,
		NewSession: func(events session.Events) (*session.Session, error) {
			ctrl, err := session.NewController(session.ControllerConfig{
				SessionID: "s-1",
				Language:  "en",
				Catalog:   cat,
				Normalize: pipeline,
			})
			if err != nil {
				return nil, err
			}
			seg, err := segment.New(segment.Config{
				SampleRate:    16000,
				FrameDuration: 20 * time.Millisecond,
				EnergyFloor:   300,
				ConfirmFrames: 2,
				SilenceEnd:    60 * time.Millisecond,
				MinUtterance:  100 * time.Millisecond,
			})
			if err != nil {
				return nil, err
			}
			return session.NewSession(session.RuntimeConfig{
				Controller: ctrl,
				Segmenter:  seg,
				STT:        &sttmock.Provider{Transcripts: []types.Transcript{{Text: transcript, Confidence: 0.9}}},
				TTS:        &ttsmock.Provider{Chunks: [][]byte{{1, 2}, {3, 4}}},
				Events:     events,
			})
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return h
}

func pcmFrame(amplitude int16) []byte {
	const samples = 320
	data := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(amplitude))
	}
	return data
}

func TestGatewaySessionRoundTrip(t *testing.T) {
	t.Parallel()

	h := testHandler(t, "two garlic naan")
	mux := http.NewServeMux()
	h.Register(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/session"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	for i := 0; i < 10; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(3000)); err != nil {
			t.Fatalf("write frame: %v", err)
		}
	}
	for i := 0; i < 4; i++ {
		if err := conn.Write(ctx, websocket.MessageBinary, pcmFrame(0)); err != nil {
			t.Fatalf("write silence: %v", err)
		}
	}

	var (
		textEvents  []eventMessage
		audioChunks int
	)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read: %v (events so far: %+v)", err, textEvents)
		}
		if typ == websocket.MessageBinary {
			audioChunks++
			continue
		}
		var msg eventMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		textEvents = append(textEvents, msg)
		if msg.Type == eventReplyEnded {
			break
		}
	}

	var sawUser, sawAgent, sawThinking bool
	for _, ev := range textEvents {
		switch ev.Type {
		case eventUserText:
			sawUser = ev.Text == "two garlic naan"
		case eventAgentText:
			sawAgent = strings.Contains(ev.Text, "Garlic Naan")
		case eventThinkingStarted:
			sawThinking = true
		}
	}
	if !sawUser || !sawAgent || !sawThinking {
		t.Errorf("events = %+v, missing user/agent/thinking", textEvents)
	}
	if audioChunks != 2 {
		t.Errorf("audio chunks = %d, want 2", audioChunks)
	}

	// A clean end_session closes the socket normally.
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"end_session"}`)); err != nil {
		t.Fatalf("write control: %v", err)
	}
	_, _, err = conn.Read(ctx)
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Errorf("close status = %v, want normal closure", err)
	}
}

func TestGatewayRejectsMissingFactory(t *testing.T) {
	t.Parallel()

	if _, err := NewHandler(Config{}); err == nil {
		t.Fatal("expected an error without a session factory")
	}
}
