package signal

import "context"

func (ctl *SignalWSController) handlePing(_ context.Context, cl *client, _ []byte) error {
	resp := struct {
		Type string `json:"type"`
	}{
		Type: "pong",
	}
	ctl.sendJSON(cl.conn, resp)
	return nil
}
