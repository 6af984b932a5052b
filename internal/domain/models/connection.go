package models

// ConnState is the lifecycle state of one streaming connection.
type ConnState string

const (
	ConnDisconnected ConnState = "DISCONNECTED"
	ConnConnecting   ConnState = "CONNECTING"
	ConnConnected    ConnState = "CONNECTED"
	ConnError        ConnState = "ERROR"
	ConnClosed       ConnState = "CLOSED"
)

// ConnectionStatus describes one streaming connection for operators.
type ConnectionStatus struct {
	Index  int       `json:"index"`
	State  ConnState `json:"state"`
	Tokens int       `json:"tokens"`
}
