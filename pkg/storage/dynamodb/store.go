package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/platinummonkey/eams/pkg/permissions"
	"github.com/platinummonkey/eams/pkg/rbac"
	"github.com/platinummonkey/eams/pkg/storage"
)

// Key prefixes and the secondary index name
const (
	userPrefix        = "USER#"
	emailPrefix       = "EMAIL#"
	companyPrefix     = "COMPANY#"
	projectPrefix     = "PROJECT#"
	applicationPrefix = "APPLICATION#"
	profilePrefix     = "PROFILE#"
	emailSortKey      = "EMAIL"

	GSI1 = "GSI1"
)

const (
	attrPK      = "PK"
	attrSK      = "SK"
	attrGSI1PK  = "GSI1PK"
	attrGSI1SK  = "GSI1SK"
	attrData    = "Data"
	attrVersion = "Version"
	attrUserID  = "UserID"
)

// maxUpdateAttempts bounds retries of a user update that lost a version race
const maxUpdateAttempts = 3

// Store implements storage.Store on a single DynamoDB table
type Store struct {
	api   API
	table string
	now   func() time.Time
}

// NewStore creates a store over api and table
func NewStore(api API, table string) *Store {
	return &Store{api: api, table: table, now: time.Now}
}

// ListUsers returns every user
func (s *Store) ListUsers(ctx context.Context) ([]rbac.User, error) {
	users, err := scanRecords[rbac.User](ctx, s, userPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	sort.SliceStable(users, func(i, j int) bool {
		return before(users[i].CreatedAt, users[i].ID, users[j].CreatedAt, users[j].ID)
	})
	return users, nil
}

// GetUser returns a user by ID
func (s *Store) GetUser(ctx context.Context, id string) (*rbac.User, error) {
	u, _, err := s.getUser(ctx, id)
	return u, err
}

// GetUserByEmail returns a user by email, compared case-insensitively
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*rbac.User, error) {
	out, err := s.api.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key:       key(emailKey(email), emailSortKey),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", email, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user %s: %w", email, storage.ErrNotFound)
	}
	id, ok := out.Item[attrUserID].(*types.AttributeValueMemberS)
	if !ok {
		return nil, fmt.Errorf("email index %s has no user id", email)
	}
	return s.GetUser(ctx, id.Value)
}

// CreateUser stores a new user and claims its email in the same transaction
func (s *Store) CreateUser(ctx context.Context, user *rbac.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	for i := range user.CompanyAccess {
		if user.CompanyAccess[i].ID == "" {
			user.CompanyAccess[i].ID = uuid.NewString()
		}
	}
	s.stamp(&user.CreatedAt, &user.UpdatedAt)

	item, err := userItem(user, 1)
	if err != nil {
		return err
	}
	items := []types.TransactWriteItem{{
		Put: &types.Put{
			TableName:           aws.String(s.table),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	}}
	if user.Email != "" {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.table),
				Item: map[string]types.AttributeValue{
					attrPK:     str(emailKey(user.Email)),
					attrSK:     str(emailSortKey),
					attrUserID: str(user.ID),
				},
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			},
		})
	}

	_, err = s.api.TransactWriteItems(ctx, &awsdynamodb.TransactWriteItemsInput{TransactItems: items})
	if err != nil {
		return mapError(err, "user "+user.Email)
	}
	return nil
}

// UpdateUserRole replaces a user's scheme
func (s *Store) UpdateUserRole(ctx context.Context, id string, scheme rbac.AuthScheme) error {
	return s.updateUser(ctx, id, func(u *rbac.User) error {
		u.Scheme = scheme
		return nil
	})
}

// PutGrant adds a grant, replacing any grant with the same ID
func (s *Store) PutGrant(ctx context.Context, userID string, grant permissions.Grant) error {
	if grant.ID == "" {
		grant.ID = uuid.NewString()
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = s.now().UTC()
	}
	return s.updateUser(ctx, userID, func(u *rbac.User) error {
		for i, g := range u.CompanyAccess {
			if g.ID == grant.ID {
				u.CompanyAccess[i] = grant
				return nil
			}
		}
		u.CompanyAccess = append(u.CompanyAccess, grant)
		return nil
	})
}

// RemoveGrant deletes a grant by ID
func (s *Store) RemoveGrant(ctx context.Context, userID, grantID string) error {
	return s.updateUser(ctx, userID, func(u *rbac.User) error {
		for i, g := range u.CompanyAccess {
			if g.ID == grantID {
				u.CompanyAccess = append(u.CompanyAccess[:i], u.CompanyAccess[i+1:]...)
				return nil
			}
		}
		return fmt.Errorf("grant %s: %w", grantID, storage.ErrNotFound)
	})
}

// ListExpiredGrants returns grants whose expiry is at or before now
func (s *Store) ListExpiredGrants(ctx context.Context, now time.Time) ([]storage.ExpiredGrant, error) {
	users, err := scanRecords[rbac.User](ctx, s, userPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired grants: %w", err)
	}

	var out []storage.ExpiredGrant
	for _, u := range users {
		for _, g := range u.CompanyAccess {
			if g.ExpiresAt != nil && !g.ExpiresAt.After(now) {
				out = append(out, storage.ExpiredGrant{UserID: u.ID, Email: u.Email, Grant: g})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return before(*out[i].Grant.ExpiresAt, out[i].Grant.ID, *out[j].Grant.ExpiresAt, out[j].Grant.ID)
	})
	return out, nil
}

// ListCompanies returns every company
func (s *Store) ListCompanies(ctx context.Context) ([]storage.Company, error) {
	companies, err := scanRecords[storage.Company](ctx, s, companyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	sort.SliceStable(companies, func(i, j int) bool {
		return before(companies[i].CreatedAt, companies[i].ID, companies[j].CreatedAt, companies[j].ID)
	})
	return companies, nil
}

// GetCompany returns a company by ID
func (s *Store) GetCompany(ctx context.Context, id string) (*storage.Company, error) {
	var c storage.Company
	if _, err := s.getRecord(ctx, companyPrefix+id, &c, "company "+id); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCompany stores a new company
func (s *Store) CreateCompany(ctx context.Context, company *storage.Company) error {
	if company.ID == "" {
		company.ID = uuid.NewString()
	}
	company.ApplyDefaults()
	s.stamp(&company.CreatedAt, &company.UpdatedAt)
	return s.putNew(ctx, companyPrefix+company.ID, company.ID, nil, company, "company "+company.ID)
}

// ListProjects returns every project
func (s *Store) ListProjects(ctx context.Context) ([]storage.Project, error) {
	projects, err := scanRecords[storage.Project](ctx, s, projectPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return before(projects[i].CreatedAt, projects[i].ID, projects[j].CreatedAt, projects[j].ID)
	})
	return projects, nil
}

// GetProject returns a project by ID
func (s *Store) GetProject(ctx context.Context, id string) (*storage.Project, error) {
	var p storage.Project
	if _, err := s.getRecord(ctx, projectPrefix+id, &p, "project "+id); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject stores a new project, indexed under its company
func (s *Store) CreateProject(ctx context.Context, project *storage.Project) error {
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	project.ApplyDefaults()
	s.stamp(&project.CreatedAt, &project.UpdatedAt)
	index := gsi(companyPrefix+project.CompanyID, projectPrefix+project.ID)
	return s.putNew(ctx, projectPrefix+project.ID, project.ID, index, project, "project "+project.ID)
}

// ListApplications returns the applications of a project
func (s *Store) ListApplications(ctx context.Context, projectID string) ([]storage.Application, error) {
	paginator := awsdynamodb.NewQueryPaginator(s.api, &awsdynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(GSI1),
		KeyConditionExpression: aws.String("GSI1PK = :pk AND begins_with(GSI1SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": str(projectPrefix + projectID),
			":sk": str(applicationPrefix),
		},
	})

	out := make([]storage.Application, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list applications of %s: %w", projectID, err)
		}
		for _, item := range page.Items {
			var a storage.Application
			if err := decode(item, &a); err != nil {
				return nil, err
			}
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return before(out[i].CreatedAt, out[i].ID, out[j].CreatedAt, out[j].ID)
	})
	return out, nil
}

// CreateApplication stores a new application, indexed under its project
func (s *Store) CreateApplication(ctx context.Context, app *storage.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.ApplyDefaults()
	s.stamp(&app.CreatedAt, &app.UpdatedAt)
	index := gsi(projectPrefix+app.ProjectID, applicationPrefix+app.ID)
	return s.putNew(ctx, applicationPrefix+app.ID, app.ID, index, app, "application "+app.ID)
}

// Ping checks the table is reachable
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &awsdynamodb.DescribeTableInput{TableName: aws.String(s.table)})
	if err != nil {
		return fmt.Errorf("failed to describe table %s: %w", s.table, err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, id string) (*rbac.User, int, error) {
	var u rbac.User
	version, err := s.getRecord(ctx, userPrefix+id, &u, "user "+id)
	if err != nil {
		return nil, 0, err
	}
	return &u, version, nil
}

// updateUser applies fn to the stored user and writes it back if the version
// has not moved, re-reading on a lost race
func (s *Store) updateUser(ctx context.Context, id string, fn func(*rbac.User) error) error {
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		u, version, err := s.getUser(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(u); err != nil {
			return err
		}
		u.UpdatedAt = s.now().UTC()

		item, err := userItem(u, version+1)
		if err != nil {
			return err
		}
		_, err = s.api.PutItem(ctx, &awsdynamodb.PutItemInput{
			TableName:                aws.String(s.table),
			Item:                     item,
			ConditionExpression:      aws.String("#v = :v"),
			ExpressionAttributeNames: map[string]string{"#v": attrVersion},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":v": num(version),
			},
		})
		if err == nil {
			return nil
		}
		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return fmt.Errorf("failed to update user %s: %w", id, err)
		}
	}
	return fmt.Errorf("user %s changed concurrently: %w", id, storage.ErrConflict)
}

func (s *Store) getRecord(ctx context.Context, pk string, dst interface{}, what string) (int, error) {
	id := pk[strings.Index(pk, "#")+1:]
	out, err := s.api.GetItem(ctx, &awsdynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            key(pk, profilePrefix+id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", what, err)
	}
	if out.Item == nil {
		return 0, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err := decode(out.Item, dst); err != nil {
		return 0, err
	}
	return itemVersion(out.Item), nil
}

func (s *Store) putNew(ctx context.Context, pk, id string, index map[string]types.AttributeValue, record interface{}, what string) error {
	item, err := recordItem(pk, id, record, 1)
	if err != nil {
		return err
	}
	for k, v := range index {
		item[k] = v
	}
	_, err = s.api.PutItem(ctx, &awsdynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return mapError(err, what)
	}
	return nil
}

func (s *Store) stamp(created, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	*updated = now
}

// scanRecords reads every profile item whose PK starts with prefix
func scanRecords[T any](ctx context.Context, s *Store, prefix string) ([]T, error) {
	paginator := awsdynamodb.NewScanPaginator(s.api, &awsdynamodb.ScanInput{
		TableName:        aws.String(s.table),
		FilterExpression: aws.String("begins_with(PK, :pk) AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": str(prefix),
			":sk": str(profilePrefix),
		},
	})

	out := make([]T, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			var rec T
			if err := decode(item, &rec); err != nil {
				return nil, err
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func userItem(u *rbac.User, version int) (map[string]types.AttributeValue, error) {
	item, err := recordItem(userPrefix+u.ID, u.ID, u, version)
	if err != nil {
		return nil, err
	}
	if u.AssignedCompanyID != "" {
		for k, v := range gsi(companyPrefix+u.AssignedCompanyID, userPrefix+u.ID) {
			item[k] = v
		}
	}
	return item, nil
}

func recordItem(pk, id string, record interface{}, version int) (map[string]types.AttributeValue, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", pk, err)
	}
	return map[string]types.AttributeValue{
		attrPK:      str(pk),
		attrSK:      str(profilePrefix + id),
		attrData:    str(string(data)),
		attrVersion: num(version),
	}, nil
}

func decode(item map[string]types.AttributeValue, dst interface{}) error {
	data, ok := item[attrData].(*types.AttributeValueMemberS)
	if !ok {
		return fmt.Errorf("item %s has no data", stringAttr(item, attrPK))
	}
	if err := json.Unmarshal([]byte(data.Value), dst); err != nil {
		return fmt.Errorf("failed to decode %s: %w", stringAttr(item, attrPK), err)
	}
	return nil
}

func itemVersion(item map[string]types.AttributeValue) int {
	n, ok := item[attrVersion].(*types.AttributeValueMemberN)
	if !ok {
		return 0
	}
	v, _ := strconv.Atoi(n.Value)
	return v
}

func key(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrPK: str(pk), attrSK: str(sk)}
}

func gsi(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{attrGSI1PK: str(pk), attrGSI1SK: str(sk)}
}

func emailKey(email string) string {
	return emailPrefix + strings.ToLower(email)
}

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func num(v int) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.Itoa(v)}
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func before(at time.Time, id string, otherAt time.Time, otherID string) bool {
	if !at.Equal(otherAt) {
		return at.Before(otherAt)
	}
	return id < otherID
}

// mapError translates failed put conditions into storage sentinels
func mapError(err error, what string) error {
	var ccf *types.ConditionalCheckFailedException
	var tce *types.TransactionCanceledException
	if errors.As(err, &ccf) || errors.As(err, &tce) {
		return fmt.Errorf("%s: %w", what, storage.ErrConflict)
	}
	return fmt.Errorf("failed to write %s: %w", what, err)
}

var _ storage.Store = (*Store)(nil)
