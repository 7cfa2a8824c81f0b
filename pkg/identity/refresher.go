package identity

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultRefreshSchedule renews cached tokens every five minutes, well
// inside the expiry skew the token cache applies.
const DefaultRefreshSchedule = "@every 5m"

// Refresher periodically renews cached tokens for every registered client
// so fragments rarely hit the interaction-required fallback during normal
// use. Refresh failures are logged and left to the synchronizer's fallback
// chain at the next acquisition.
type Refresher struct {
	cron *cron.Cron
	log  *logrus.Logger

	// OnResult, when set before Start, observes each refresh attempt's
	// outcome. Metrics hook.
	OnResult func(clientID string, err error)

	mu      sync.Mutex
	clients []Client
}

// NewRefresher creates a refresher on the given cron schedule. An empty
// schedule selects DefaultRefreshSchedule.
func NewRefresher(schedule string, log *logrus.Logger) (*Refresher, error) {
	if log == nil {
		log = logrus.New()
	}
	if schedule == "" {
		schedule = DefaultRefreshSchedule
	}

	r := &Refresher{
		cron: cron.New(),
		log:  log,
	}
	if _, err := r.cron.AddFunc(schedule, r.refreshAll); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds a client to the refresh cycle.
func (r *Refresher) Register(client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients = append(r.clients, client)
}

// Start begins the refresh schedule.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Refresher) refreshAll() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	r.mu.Lock()
	clients := make([]Client, len(r.clients))
	copy(clients, r.clients)
	r.mu.Unlock()

	for _, client := range clients {
		for _, account := range client.Accounts() {
			account := account
			_, err := client.AcquireTokenSilent(ctx, TokenRequest{Account: &account})
			if r.OnResult != nil {
				r.OnResult(client.ClientID(), err)
			}
			if err == nil {
				continue
			}
			if IsInteractionRequired(err) {
				r.log.WithFields(logrus.Fields{
					"client":  client.ClientID(),
					"account": account.HomeAccountID,
				}).Debug("Scheduled refresh needs interaction, deferring to synchronizer")
				continue
			}
			r.log.WithError(err).WithField("client", client.ClientID()).
				Warn("Scheduled token refresh failed")
		}
	}
}
