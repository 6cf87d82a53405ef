package chatpb

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"Seshat/internal/models"
)

func num(v int64) *structpb.Value { return structpb.NewNumberValue(float64(v)) }

func str(v string) *structpb.Value { return structpb.NewStringValue(v) }

func timeValue(t time.Time) *structpb.Value {
	return structpb.NewStringValue(t.UTC().Format(time.RFC3339Nano))
}

// Int64 reads a numeric field; a missing field reads as 0.
func Int64(s *structpb.Struct, key string) int64 {
	return int64(s.GetFields()[key].GetNumberValue())
}

func String(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

func Bool(s *structpb.Struct, key string) bool {
	return s.GetFields()[key].GetBoolValue()
}

func Sub(s *structpb.Struct, key string) *structpb.Struct {
	return s.GetFields()[key].GetStructValue()
}

func parseTime(s *structpb.Struct, key string) (time.Time, error) {
	raw := String(s, key)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("chatpb: field %s: %w", key, err)
	}
	return t, nil
}

// Fields builds a request body. Values must be int64, int, bool, string or
// *structpb.Struct.
func Fields(kv map[string]any) *structpb.Struct {
	out := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(kv))}
	for k, v := range kv {
		switch v := v.(type) {
		case int64:
			out.Fields[k] = num(v)
		case int:
			out.Fields[k] = num(int64(v))
		case bool:
			out.Fields[k] = structpb.NewBoolValue(v)
		case string:
			out.Fields[k] = str(v)
		case *structpb.Struct:
			out.Fields[k] = structpb.NewStructValue(v)
		default:
			panic(fmt.Sprintf("chatpb: unsupported field type %T for %s", v, k))
		}
	}
	return out
}

func EncodeIdentity(id models.Identity) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"user_id":  num(id.UserID),
		"username": str(id.Username),
	}}
}

func DecodeIdentity(s *structpb.Struct) models.Identity {
	return models.Identity{UserID: Int64(s, "user_id"), Username: String(s, "username")}
}

func EncodeRoom(r models.Room) *structpb.Struct {
	parts := make([]*structpb.Value, 0, len(r.Participants))
	for _, p := range r.Participants {
		parts = append(parts, num(p))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":           num(r.ID),
		"name":         str(r.Name),
		"chat_type":    str(string(r.ChatType)),
		"creator_id":   num(r.CreatorID),
		"participants": structpb.NewListValue(&structpb.ListValue{Values: parts}),
		"created_at":   timeValue(r.CreatedAt),
	}}
}

func DecodeRoom(s *structpb.Struct) (models.Room, error) {
	created, err := parseTime(s, "created_at")
	if err != nil {
		return models.Room{}, err
	}
	r := models.Room{
		ID:        Int64(s, "id"),
		Name:      String(s, "name"),
		ChatType:  models.ChatType(String(s, "chat_type")),
		CreatorID: Int64(s, "creator_id"),
		CreatedAt: created,
	}
	for _, v := range s.GetFields()["participants"].GetListValue().GetValues() {
		r.Participants = append(r.Participants, int64(v.GetNumberValue()))
	}
	return r, nil
}

func EncodeMessage(m models.Message) *structpb.Struct {
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"id":        num(m.ID),
		"room_id":   num(m.RoomID),
		"user_id":   num(m.UserID),
		"username":  str(m.Username),
		"content":   str(m.Content),
		"timestamp": timeValue(m.Timestamp),
	}}
}

func DecodeMessage(s *structpb.Struct) (models.Message, error) {
	ts, err := parseTime(s, "timestamp")
	if err != nil {
		return models.Message{}, err
	}
	return models.Message{
		ID:        Int64(s, "id"),
		RoomID:    Int64(s, "room_id"),
		UserID:    Int64(s, "user_id"),
		Username:  String(s, "username"),
		Content:   String(s, "content"),
		Timestamp: ts,
	}, nil
}

func EncodeMessages(msgs []models.Message) *structpb.Struct {
	values := make([]*structpb.Value, 0, len(msgs))
	for _, m := range msgs {
		values = append(values, structpb.NewStructValue(EncodeMessage(m)))
	}
	return &structpb.Struct{Fields: map[string]*structpb.Value{
		"messages": structpb.NewListValue(&structpb.ListValue{Values: values}),
	}}
}

func DecodeMessages(s *structpb.Struct) ([]models.Message, error) {
	values := s.GetFields()["messages"].GetListValue().GetValues()
	msgs := make([]models.Message, 0, len(values))
	for _, v := range values {
		m, err := DecodeMessage(v.GetStructValue())
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}
