package oracle

import (
	"github.com/flashbots/noisyagg/crypto"
	"github.com/flashbots/noisyagg/fhe"
	"github.com/flashbots/noisyagg/protocol"
)

// Statement is what the oracle signs for every decryption it performs.
type Statement struct {
	RequestID protocol.RequestID `json:"request_id"`
	Handles   []fhe.Handle       `json:"handles"`
	Cleartext []byte             `json:"cleartext"`
}

// Result is one fulfilled decryption request, as delivered to the ledger.
type Result struct {
	RequestID protocol.RequestID `json:"request_id"`
	Cleartext []byte             `json:"cleartext"`
	Proof     []byte             `json:"proof"`
}

// SignStatement produces the proof for st.
func SignStatement(signingKey crypto.PrivateKey, st *Statement) ([]byte, error) {
	data, err := protocol.SerializeMessage(st)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(signingKey, data)
	if err != nil {
		return nil, err
	}
	return sig.Bytes(), nil
}

// VerifyStatement checks proof against st and the oracle's public key.
func VerifyStatement(oracleKey crypto.PublicKey, st *Statement, proof []byte) bool {
	data, err := protocol.SerializeMessage(st)
	if err != nil {
		return false
	}
	return crypto.NewSignature(proof).Verify(oracleKey, data)
}
