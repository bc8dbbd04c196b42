package monitor

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"

	"trade_pilot/internal/models"
	"trade_pilot/pkg/db"
)

// PgStore кладёт записи монитора в postgres. Payload — json целиком:
// схема записи меняется чаще, чем хочется гонять миграции.
type PgStore struct {
	db *db.PgTxManager
}

func NewPgStore(db *db.PgTxManager) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Insert(ctx context.Context, rec models.MonitorRecord) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.InsertMonitorRecord")
		}
	}()

	payload, err := sonic.Marshal(rec)
	if err != nil {
		return err
	}

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`INSERT INTO monitor_records (chat_id, trade_id, payload)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (trade_id) DO UPDATE SET payload = EXCLUDED.payload`,
			rec.ChatID, rec.TradeID, payload,
		)
		return err
	})
}

func (s *PgStore) Delete(ctx context.Context, chatID int64, tradeID string) (err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.DeleteMonitorRecord")
		}
	}()

	return s.db.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx,
			`DELETE FROM monitor_records WHERE chat_id = $1 AND trade_id = $2`,
			chatID, tradeID,
		)
		return err
	})
}

func (s *PgStore) List(ctx context.Context) (out []models.MonitorRecord, err error) {
	defer func() {
		if err != nil {
			err = errors.Wrap(err, "pg.ListMonitorRecords")
		}
	}()

	rows, err := s.db.Conn().Query(ctx, `SELECT chat_id, trade_id, payload FROM monitor_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chatID  int64
			tradeID string
			payload []byte
		)
		if err := rows.Scan(&chatID, &tradeID, &payload); err != nil {
			return nil, err
		}
		var rec models.MonitorRecord
		if err := sonic.Unmarshal(payload, &rec); err != nil {
			// битый payload не валит весь лист: отдаём запись с одними ключами,
			// её отбросит (и подчистит) валидация резюма
			rec = models.MonitorRecord{ChatID: chatID, TradeID: tradeID}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
