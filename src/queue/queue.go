// Package queue hands processing jobs from the API to the workers through
// redis: requests are RPUSHed onto a list, results are stored for an hour.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ujj1225/hamroform/src/datastructures"
	"github.com/garyburd/redigo/redis"
)

const (
	DefaultName = "processme"
	// ResultTTL is how long results are kept. Nobody polls for an hour
	// old job, so there is no point in keeping them longer.
	ResultTTL = 3600
)

func NewPool(address string, maxConnections int) *redis.Pool {
	return redis.NewPool(func() (redis.Conn, error) {
		c, err := redis.Dial("tcp", address)
		if err != nil {
			return nil, err
		}
		return c, err
	}, maxConnections)
}

type Queue struct {
	pool *redis.Pool
	name string
}

func New(pool *redis.Pool, name string) *Queue {
	if name == "" {
		name = DefaultName
	}
	return &Queue{pool: pool, name: name}
}

func (q *Queue) resultKey(uuid string) string {
	return q.name + ":result:" + uuid
}

func (q *Queue) Push(req datastructures.ProcessRequest) error {
	serialized, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("couldn't marshal request: %w", err)
	}

	conn := q.pool.Get()
	defer conn.Close()

	_, err = conn.Do("RPUSH", q.name, serialized)
	return err
}

// Pop takes the oldest request off the queue. It returns nil if the
// queue is empty.
func (q *Queue) Pop() (*datastructures.ProcessRequest, error) {
	conn := q.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("LPOP", q.name))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var req datastructures.ProcessRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal request: %w", err)
	}
	return &req, nil
}

func (q *Queue) StoreResult(res datastructures.ProcessResult) error {
	if res.Finished == 0 {
		res.Finished = time.Now().Unix()
	}
	serialized, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("couldn't marshal result: %w", err)
	}

	conn := q.pool.Get()
	defer conn.Close()

	_, err = conn.Do("SETEX", q.resultKey(res.Uuid), ResultTTL, serialized)
	return err
}

// Result returns the stored result of a job, or nil if it isn't finished
// (or never existed, which callers can't tell apart).
func (q *Queue) Result(uuid string) (*datastructures.ProcessResult, error) {
	conn := q.pool.Get()
	defer conn.Close()

	data, err := redis.Bytes(conn.Do("GET", q.resultKey(uuid)))
	if err == redis.ErrNil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var res datastructures.ProcessResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("couldn't unmarshal result: %w", err)
	}
	return &res, nil
}

func (q *Queue) Ping() error {
	conn := q.pool.Get()
	defer conn.Close()

	_, err := conn.Do("PING")
	return err
}
