package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/coderoom-server/internal/proto"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	room := flag.String("room", "smoke", "room id")
	text := flag.String("text", "hello from smoke test", "chat message to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	editor, err := dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer editor.Close(websocket.StatusNormalClosure, "bye")

	viewer, err := dial(ctx, *addr)
	if err != nil {
		return err
	}
	defer viewer.Close(websocket.StatusNormalClosure, "bye")

	steps := []struct {
		conn   *websocket.Conn
		send   proto.Inbound
		expect map[*websocket.Conn]string
	}{
		{
			conn:   editor,
			send:   proto.Inbound{Type: proto.InboundTypeJoin, RoomID: *room, UserID: "1", Username: "editor"},
			expect: map[*websocket.Conn]string{editor: proto.OutboundTypeRoomInfo},
		},
		{
			conn: viewer,
			send: proto.Inbound{Type: proto.InboundTypeJoin, RoomID: *room, UserID: "2", Username: "viewer"},
			expect: map[*websocket.Conn]string{
				editor: proto.OutboundTypeUserJoined,
				viewer: proto.OutboundTypeRoomInfo,
			},
		},
		{
			conn:   editor,
			send:   proto.Inbound{Type: proto.InboundTypeCodeUpdate, RoomID: *room, UserID: "1", Code: "print('hi')", Language: "python"},
			expect: map[*websocket.Conn]string{viewer: proto.OutboundTypeCodeUpdate},
		},
		{
			conn: viewer,
			send: proto.Inbound{Type: proto.InboundTypeChatMessage, RoomID: *room, UserID: "2", Message: *text},
			expect: map[*websocket.Conn]string{
				editor: proto.OutboundTypeChatMessage,
				viewer: proto.OutboundTypeChatMessage,
			},
		},
	}

	for i, step := range steps {
		if err := wsjson.Write(ctx, step.conn, step.send); err != nil {
			return fmt.Errorf("step %d: send %s: %w", i, step.send.Type, err)
		}
		for conn, want := range step.expect {
			var out map[string]any
			if err := wsjson.Read(ctx, conn, &out); err != nil {
				return fmt.Errorf("step %d: read: %w", i, err)
			}
			fmt.Printf("Received outbound: %v\n", out)
			if out["type"] != want {
				return fmt.Errorf("step %d: expected %s, got %v", i, want, out["type"])
			}
		}
	}

	fmt.Println("smoke test passed")
	return nil
}

func dial(ctx context.Context, addr string) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	return conn, nil
}
