/*
Package resilience provides the circuit breaker the router puts in front of
the runtime connection.

When the runtime process is down, every forwarded request would otherwise
wait for a dial or deadline before failing. An open breaker fails them at
once, and the router reports REMOTE_EXCEPTION without touching the socket.

# Usage

	breaker := resilience.New("runtime", resilience.Settings{
		MaxRequests: 3,
		Timeout:     10 * time.Second,
		IsSuccessful: func(err error) bool {
			return err == nil || status.Code(err) == codes.InvalidArgument
		},
	})

	err := breaker.Execute(func() error {
		return client.call(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                       [failure]
	                                           v
	                                          Open

Results that arrive after the breaker changed state belong to an older
generation and are not counted.
*/
package resilience
