package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeSuccess         = "success"
	outcomeFailure         = "failure"
	outcomeRedirectPending = "redirect_pending"
	outcomePendingApproval = "pending_approval"
	outcomeDenied          = "denied"
)

var signInCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "guildhall_session_sign_ins_total",
	Help: "Number of sign-in attempts by method and outcome.",
}, []string{"method", "outcome"})

var signOutCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "guildhall_session_sign_outs_total",
	Help: "Number of sign-outs.",
})
