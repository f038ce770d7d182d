// Package wsnotify keeps a single, long lived websocket connection to a
// notification server and recovers it when it drops.
//
// The client handles:
//   - Reconnection with exponential backoff (1s, 2s, 4s ... capped at 30s)
//     and a ceiling of consecutive attempts
//   - Application level keepalive pings every 30s, with an optional pong
//     deadline
//   - Decoding of the server envelopes (connected, pong, subscribed, error,
//     notification)
//   - Callback or channel based delivery
//
// Basic usage:
//
//	c := wsnotify.New(wsnotify.Config{
//	    URL:   "https://notify.example.com/ws",
//	    Token: "s3cret",
//	})
//
//	err := c.Connect(ctx, wsnotify.Handlers{
//	    OnData: func(p wsnotify.Payload) {
//	        fmt.Println(p)
//	    },
//	    OnError: func(err error) {
//	        log.Println(err)
//	    },
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Disconnect()
//
// Or as a stream, closed once the client stops for good:
//
//	events, err := c.Stream(ctx, 64)
//	for e := range events {
//	    fmt.Println(e)
//	}
//
// A close with code 1000, from either side, is final. Any other closure is
// followed by reconnection attempts until one succeeds or MaxAttempts is
// reached, at which point OnError receives ErrMaxAttemptsReached.
package wsnotify
