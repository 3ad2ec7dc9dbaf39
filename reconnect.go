package remote

// reconnector holds auto-reconnect state. Owned by the control loop.
type reconnector struct {
	autoReconnect       bool
	reconnectTimer      *loopTimer
	failsafeTimer       *loopTimer
	autoDisconnectTimer *loopTimer

	unsubscribe func()
	generation  uint64
}

func (s *Service) autoReconnectFired() {
	if s.state == StateDisconnected && s.recon.autoReconnect {
		s.logger.Debug().Msg("reconnecting")
		s.connectIfNotConnected()
	}
}

// armFailsafe schedules one connect attempt in case the first one never
// gets started or is lost without a failure event.
func (s *Service) armFailsafe() {
	s.arm(&s.recon.failsafeTimer, "failsafe", s.timings.FailsafeDelay, func() {
		if s.state == StateDisconnected && len(s.clients) > 0 {
			s.logger.Debug().Msg("failsafe reconnect")
			s.Connect()
		}
	})
}

func (s *Service) armAutoDisconnect() {
	s.arm(&s.recon.autoDisconnectTimer, "auto-disconnect", s.timings.AutoDisconnectDelay, func() {
		if len(s.clients) == 0 {
			s.logger.Info().Msg("no clients left, disconnecting")
			s.disconnect(false)
		}
	})
}

func (s *Service) subscribeNetwork() {
	if s.observer == nil || s.recon.unsubscribe != nil {
		return
	}
	s.recon.generation++
	gen := s.recon.generation
	s.recon.unsubscribe = s.observer.Subscribe(func(available bool) {
		s.queue.push(networkEvent{generation: gen, available: available})
	})
}

func (s *Service) unsubscribeNetwork() {
	if s.recon.unsubscribe == nil {
		return
	}
	s.recon.unsubscribe()
	s.recon.unsubscribe = nil
	s.recon.generation++
}

func (s *Service) handleNetwork(ev networkEvent) {
	if ev.generation != s.recon.generation || s.recon.unsubscribe == nil {
		return
	}
	s.logger.Debug().Bool("available", ev.available).Msg("network changed")
	if ev.available && s.recon.autoReconnect && s.state == StateDisconnected {
		s.connectIfNotConnected()
	}
}
