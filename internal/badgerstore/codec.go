package badgerstore

import (
	"time"

	"github.com/fxamacker/cbor/v2"

	"courier/pkg/types"
)

// encMode uses Core Deterministic Encoding so the same record always produces
// identical bytes
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("badgerstore: CBOR encoder initialization failed: " + err.Error())
	}

	// Unknown fields are ignored so records written by newer versions stay readable
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("badgerstore: CBOR decoder initialization failed: " + err.Error())
	}
}

type identityRecord struct {
	ID        string `cbor:"1,keyasint"`
	Name      string `cbor:"2,keyasint"`
	CreatedAt int64  `cbor:"3,keyasint"`
}

type messageRecord struct {
	ID         string `cbor:"1,keyasint"`
	SenderID   string `cbor:"2,keyasint"`
	ReceiverID string `cbor:"3,keyasint"`
	Body       string `cbor:"4,keyasint"`
	Timestamp  int64  `cbor:"5,keyasint"`
}

func fromIdentity(identity *types.Identity) identityRecord {
	return identityRecord{
		ID:        identity.ID,
		Name:      identity.Name,
		CreatedAt: identity.CreatedAt.UnixNano(),
	}
}

func (r identityRecord) toIdentity() *types.Identity {
	return &types.Identity{
		ID:        r.ID,
		Name:      r.Name,
		CreatedAt: time.Unix(0, r.CreatedAt).UTC(),
	}
}

func fromMessage(message *types.Message) messageRecord {
	return messageRecord{
		ID:         message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		Body:       message.Body,
		Timestamp:  message.Timestamp.UnixNano(),
	}
}

func (r messageRecord) toMessage() *types.Message {
	return &types.Message{
		ID:         r.ID,
		SenderID:   r.SenderID,
		ReceiverID: r.ReceiverID,
		Body:       r.Body,
		Timestamp:  time.Unix(0, r.Timestamp).UTC(),
	}
}
