package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes runs after nrgin.Middleware and enriches its transaction with the
// transaction id being handled and any errors recorded on the gin context.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}

		if id := transactionIDFrom(c); id != "" {
			txn.AddAttribute("paymentTransactionId", id)
		}
		txn.AddAttribute("httpStatus", c.Writer.Status())

		for _, ginErr := range c.Errors {
			txn.NoticeError(ginErr.Err)
		}
	}
}

// transactionIDFrom looks for a payment transaction id in the path or query.
func transactionIDFrom(c *gin.Context) string {
	if id := c.Param("transactionId"); id != "" {
		return id
	}
	for _, key := range []string{"transactionId", "oid", "pid"} {
		if id := c.Query(key); id != "" {
			return id
		}
	}
	return ""
}
