package scanner

import (
	"bytes"
	"context"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qrticket/internal/codegen"
	"qrticket/models"
)

// dialStation starts a server that wraps each connection in a RemoteCamera
// and returns the station side of the socket.
func dialStation(t *testing.T, hello Envelope) (*RemoteCamera, *websocket.Conn) {
	t.Helper()

	cams := make(chan *RemoteCamera, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cam, err := NewRemoteCamera(ctx, conn)
		if err != nil {
			conn.Close()
			return
		}
		cams <- cam
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	station, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { station.Close() })

	require.NoError(t, station.WriteJSON(hello))

	select {
	case cam := <-cams:
		t.Cleanup(func() { cam.Close() })
		return cam, station
	case <-time.After(5 * time.Second):
		t.Fatal("remote camera not created")
		return nil, nil
	}
}

func TestRemoteCamera_Hello(t *testing.T) {
	cam, _ := dialStation(t, Envelope{
		Type:       MsgHello,
		Secure:     true,
		Permission: PermissionGranted,
		Devices:    []Device{{ID: "d1", Label: "Back Camera"}},
	})

	assert.True(t, cam.SecureContext())
	assert.Equal(t, PermissionGranted, cam.Permission(context.Background()))
	devices, err := cam.Devices(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Device{{ID: "d1", Label: "Back Camera"}}, devices)
}

func TestRemoteCamera_AcquireStreamsFrames(t *testing.T) {
	cam, station := dialStation(t, Envelope{
		Type:       MsgHello,
		Secure:     true,
		Permission: PermissionGranted,
		Devices:    []Device{{ID: "d1", Label: "Back Camera"}},
	})

	qr, err := codegen.RenderCode("TKT-REMOTE-0123456789", models.QRSizeMedium)
	require.NoError(t, err)
	var frame bytes.Buffer
	require.NoError(t, png.Encode(&frame, qr))

	var tried []ConstraintMode
	stationDone := make(chan struct{})
	go func() {
		defer close(stationDone)
		for {
			var msg Envelope
			if err := station.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case MsgOpen:
				tried = append(tried, msg.Constraints.Mode)
				if msg.Constraints.Mode == ModeDevice {
					_ = station.WriteJSON(Envelope{Type: MsgOpenFailed, Error: "NotReadableError"})
					continue
				}
				_ = station.WriteJSON(Envelope{Type: MsgOpened})
				_ = station.WriteMessage(websocket.BinaryMessage, frame.Bytes())
			case MsgClose:
				return
			}
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, used, err := Acquire(ctx, cam, FacingBack)
	require.NoError(t, err)
	assert.Equal(t, ModeIdealFacing, used.Mode)

	require.Eventually(t, stream.Ready, 5*time.Second, 10*time.Millisecond)
	img, err := stream.Frame()
	require.NoError(t, err)
	text, err := codegen.Decode(img)
	require.NoError(t, err)
	assert.Equal(t, "TKT-REMOTE-0123456789", text)
	assert.False(t, stream.Ready(), "frame already consumed")

	_, err = cam.Open(ctx, Constraints{Mode: ModeAny})
	assert.Error(t, err, "one stream per camera")

	require.NoError(t, stream.Close())
	select {
	case <-stationDone:
	case <-time.After(5 * time.Second):
		t.Fatal("station never saw close")
	}
	assert.Equal(t, []ConstraintMode{ModeDevice, ModeIdealFacing}, tried)
}

func TestRemoteCamera_ControlsAndDisconnect(t *testing.T) {
	cam, station := dialStation(t, Envelope{Type: MsgHello, Secure: true})
	assert.Equal(t, PermissionUnsupported, cam.Permission(context.Background()))

	require.NoError(t, station.WriteJSON(Envelope{Type: MsgSwitch, Facing: FacingFront}))
	select {
	case c := <-cam.Controls():
		assert.Equal(t, MsgSwitch, c.Type)
		assert.Equal(t, FacingFront, c.Facing)
	case <-time.After(5 * time.Second):
		t.Fatal("no control message")
	}

	station.Close()
	select {
	case <-cam.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("disconnect not observed")
	}

	_, err := cam.Open(context.Background(), Constraints{Mode: ModeAny})
	assert.Error(t, err)
}
