package domain

import "testing"

func TestConnStateTransitions(t *testing.T) {
	legal := [][2]ConnState{
		{StateDisconnected, StateConnecting},
		{StateConnecting, StateAuthenticated},
		{StateAuthenticated, StateStreaming},
		{StateStreaming, StateReconnecting},
		{StateReconnecting, StateConnecting},
		{StateReconnecting, StateFailed},
		{StateFailed, StateConnecting},
	}
	for _, pair := range legal {
		if !CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be legal", pair[0], pair[1])
		}
	}
}

func TestConnStateIllegalTransitions(t *testing.T) {
	illegal := [][2]ConnState{
		{StateDisconnected, StateStreaming},
		{StateFailed, StateStreaming},
		{StateFailed, StateReconnecting},
		{StateStreaming, StateAuthenticated},
		{StateReconnecting, StateStreaming}, // reconnect must re-dial, never jump straight back
	}
	for _, pair := range illegal {
		if CanTransition(pair[0], pair[1]) {
			t.Errorf("expected %s -> %s to be illegal", pair[0], pair[1])
		}
	}
}
