package remote

// keepAlive holds the ping timers. Both are owned by the control loop.
type keepAlive struct {
	pingTimer   *loopTimer
	expiryTimer *loopTimer
}

// ping flushes stale pings, arms the expiry and sends a new ping. The pong
// cancels the expiry and schedules the next ping.
func (s *Service) ping() {
	if s.state != StateConnected {
		return
	}
	s.failCalls(s.calls.removeClient(keepAliveClient), ErrCancelled, outcomeCancelled)
	s.arm(&s.keepAlive.expiryTimer, "ping-expiry", s.timings.PingInterval, s.pingExpired)

	onPong := func(*Message) {
		s.cancelTimer(&s.keepAlive.expiryTimer)
		if s.state == StateConnected {
			s.arm(&s.keepAlive.pingTimer, "ping", s.timings.PingInterval, s.ping)
		}
	}
	if _, err := s.send(NewRequest(RequestPing), keepAliveClient, onPong, nil); err != nil {
		// send already disconnected if the transport was dead; the expiry
		// timer handles anything else.
		s.logger.Debug().Err(err).Msg("ping not sent")
	}
}

func (s *Service) pingExpired() {
	s.logger.Warn().Dur("interval", s.timings.PingInterval).Msg("ping timed out")
	s.failCalls(s.calls.removeClient(keepAliveClient), ErrTimeout, outcomeTimeout)
	s.disconnect(s.state == StateConnected || s.recon.autoReconnect)
}

func (s *Service) stopKeepAlive() {
	s.cancelTimer(&s.keepAlive.pingTimer)
	s.cancelTimer(&s.keepAlive.expiryTimer)
}

// keepAliveActive reports whether a ping is scheduled or in flight.
func (s *Service) keepAliveActive() bool {
	return s.armed(&s.keepAlive.pingTimer) || s.armed(&s.keepAlive.expiryTimer)
}
