package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"

	"nestchat/domain"
)

func main() {
	dbPath := flag.String("db", "./data/badger", "Path to badger DB")
	// Scan messages by default; conv: and idx: rows need an explicit prefix
	prefix := flag.String("prefix", "msg:", "Prefix to scan")
	colours := flag.Bool("colours", true, "Colourize unread rows")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Conversation", "Sender", "Read", "Detail"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()

			// Secondary indexes hold raw keys, not JSON entities
			if strings.HasPrefix(string(item.Key()), "idx:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append(toRow(string(item.Key()), v, *colours))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

func toRow(rawKey string, value []byte, colours bool) []string {
	switch {
	case strings.HasPrefix(rawKey, "msg:"):
		var msg domain.Message
		if err := json.Unmarshal(value, &msg); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
			return []string{rawKey, "?", "", "", "", "", ""}
		}

		detail := msg.Text
		if msg.IsMedia() {
			detail = msg.MediaURL
		}
		read := fmt.Sprintf("%t", msg.IsRead)
		if colours && !msg.IsRead {
			read = color.New(color.BgBlack, color.FgYellow).Render(read)
		}

		return []string{
			rawKey,
			strings.ToUpper(string(msg.Type)),
			msg.CreatedAt.Format("15:04:05"),
			shortID(msg.ConversationID.String()),
			msg.SenderID,
			read,
			detail,
		}

	case strings.HasPrefix(rawKey, "conv:id:"):
		var conv domain.Conversation
		if err := json.Unmarshal(value, &conv); err != nil {
			fmt.Printf("Error unmarshaling key %s: %v\n", rawKey, err)
			return []string{rawKey, "?", "", "", "", "", ""}
		}
		detail := fmt.Sprintf("property=%s buyer=%s media=%s", conv.PropertyID, conv.BuyerID, conv.MediaPermission)
		return []string{
			rawKey,
			"CONV",
			conv.UpdatedAt.Format("15:04:05"),
			shortID(conv.ID.String()),
			conv.OwnerID,
			"",
			detail,
		}

	default:
		return []string{rawKey, "RAW", "", "", "", "", string(value)}
	}
}

// shortID keeps the first 8 characters of a uuid for readability.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
