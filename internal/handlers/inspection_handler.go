package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/repository"
)

// InspectionHandler serves the read-only inspection API used by
// operators to audit the relayer's state. It never mutates anything.
type InspectionHandler struct {
	withdrawals  repository.WithdrawalRepository
	messages     repository.MessageRepository
	transactions repository.TransactionRepository
	log          *logrus.Entry
}

// NewInspectionHandler creates the inspection handler.
func NewInspectionHandler(
	withdrawals repository.WithdrawalRepository,
	messages repository.MessageRepository,
	transactions repository.TransactionRepository,
	logger *logrus.Logger,
) *InspectionHandler {
	return &InspectionHandler{
		withdrawals:  withdrawals,
		messages:     messages,
		transactions: transactions,
		log:          logger.WithField("module", "inspection"),
	}
}

// ListWithdrawals handles GET /api/v1/withdrawals.
func (h *InspectionHandler) ListWithdrawals(c *gin.Context) {
	rows, err := h.withdrawals.All(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"withdrawals": rows})
}

// ListMessages handles GET /api/v1/messages.
func (h *InspectionHandler) ListMessages(c *gin.Context) {
	rows, err := h.messages.All(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": rows})
}

// ListTransactions handles GET /api/v1/transactions.
func (h *InspectionHandler) ListTransactions(c *gin.Context) {
	rows, err := h.transactions.All(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

// GetLineage handles GET /api/v1/withdrawals/:hash and reconstructs the
// full lineage of one withdrawal: its messages and every transaction
// attempt made for each message.
func (h *InspectionHandler) GetLineage(c *gin.Context) {
	ctx := c.Request.Context()
	hash := c.Param("hash")

	w, err := h.withdrawals.ByTxHash(ctx, hash)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "withdrawal not found"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	msgs, err := h.messages.ByValidiumTxHash(ctx, hash)
	if err != nil {
		h.fail(c, err)
		return
	}

	lineage := make([]gin.H, 0, len(msgs))
	for _, m := range msgs {
		txns, err := h.transactions.ByMessageHash(ctx, m.MessageHash)
		if err != nil {
			h.fail(c, err)
			return
		}
		lineage = append(lineage, gin.H{
			"message":      m,
			"transactions": txns,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawal": w,
		"messages":   lineage,
	})
}

func (h *InspectionHandler) fail(c *gin.Context, err error) {
	h.log.WithError(err).Error("Inspection query failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
